package lexicon

import (
	"io"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// Entry is one wordlist word. Key is the normalised matching form, Surface
// the first spelling seen for it.
type Entry struct {
	Key     string
	Surface string
	Freq    uint64
}

// ReadWordlist reads lines of the form word[<tab>frequency]. Entries whose
// normalised keys collide are merged and their frequencies summed. The
// result is sorted by key.
func ReadWordlist(r io.Reader, opts LineOptions, normalize func(string) string) ([]Entry, error) {
	index := make(map[string]int)
	var entries []Entry
	err := ScanLines(r, opts, func(lineNo int, line string) error {
		word, rest, hasFreq := strings.Cut(line, "\t")
		word = strings.TrimSpace(word)
		if word == "" {
			return apperrors.Loadf("line %d: empty word", lineNo)
		}
		freq := uint64(1)
		if hasFreq {
			field, _, _ := strings.Cut(rest, "\t")
			n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 64)
			if err != nil {
				return apperrors.Loadf("line %d: bad frequency %q", lineNo, field)
			}
			freq = n
		}
		key := normalize(word)
		if i, ok := index[key]; ok {
			entries[i].Freq += freq
			return nil
		}
		index[key] = len(entries)
		entries = append(entries, Entry{Key: key, Surface: word, Freq: freq})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// MergeWordlists combines wordlists read by ReadWordlist into one. Entries
// sharing a key have their frequencies summed; the surface form comes from
// the first list holding the key. The result is sorted by key.
func MergeWordlists(lists ...[]Entry) []Entry {
	if len(lists) == 1 {
		return lists[0]
	}
	index := make(map[string]int)
	var merged []Entry
	for _, list := range lists {
		for _, e := range list {
			if i, ok := index[e.Key]; ok {
				merged[i].Freq += e.Freq
				continue
			}
			index[e.Key] = len(merged)
			merged = append(merged, e)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Key < merged[j].Key })
	return merged
}
