package lexicon

import (
	"bufio"
	"io"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// maxLineBytes bounds a single line; embedding rows with a few hundred
// dimensions stay well below it.
const maxLineBytes = 4 << 20

// LineOptions controls ScanLines.
type LineOptions struct {
	SkipFirstLine bool
	// Comment lines start with this prefix. Empty disables comments.
	Comment string
}

// ScanLines calls fn for every non-empty, non-comment line with its 1-based
// line number. Trailing carriage returns are removed. Errors from fn are
// returned unchanged; read errors wrap ErrLoad.
func ScanLines(r io.Reader, opts LineOptions, fn func(lineNo int, line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo == 1 && opts.SkipFirstLine {
			continue
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if opts.Comment != "" && strings.HasPrefix(line, opts.Comment) {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return apperrors.Loadf("line %d: %v", lineNo+1, err)
	}
	return nil
}
