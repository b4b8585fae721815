package query

type slot int

const (
	slotStart   slot = iota // start of query or group
	slotOperand             // after a complete operand
	slotBinary              // after AND / OR
	slotUnary               // after NOT, !, +, -
	slotField               // after field:
)

func isOperand(k Kind) bool {
	switch k {
	case Term, Phrase, Wildcard, Range, Regex:
		return true
	}
	return false
}

// validate walks the token stream once and enforces the structural rules
// the lexer cannot see locally.
func validate(toks []Token) error {
	var (
		open []Token
		prev = slotStart
		last *Token // previous token, including whitespace
	)
	for i := range toks {
		tok := &toks[i]
		switch tok.Kind {
		case Space, Other:
			// neutral
		case GroupOpen:
			open = append(open, *tok)
			prev = slotStart
		case GroupClose:
			if len(open) == 0 {
				return syntaxErrorf(tok.Start, "unbalanced ')'")
			}
			switch prev {
			case slotStart:
				return syntaxErrorf(tok.Start, "empty group")
			case slotBinary, slotUnary:
				return syntaxErrorf(tok.Start, "operator without operand before ')'")
			}
			open = open[:len(open)-1]
			prev = slotOperand
		case Operator:
			if tok.IsBinary() {
				if prev != slotOperand {
					return syntaxErrorf(tok.Start, "operator %q without left operand", tok.Text)
				}
				prev = slotBinary
				break
			}
			prev = slotUnary
		case Modifier:
			if last == nil || !modifiable(last.Kind) {
				return syntaxErrorf(tok.Start, "modifier %q must directly follow a term, phrase or group", tok.Text)
			}
			prev = slotOperand
		case Field:
			prev = slotField
		default:
			if isOperand(tok.Kind) {
				prev = slotOperand
			}
		}
		last = tok
	}
	if len(open) > 0 {
		return syntaxErrorf(open[len(open)-1].Start, "unbalanced '('")
	}
	if prev == slotBinary || prev == slotUnary {
		last := lastSignificant(toks)
		return syntaxErrorf(last.Start, "operator %q without operand", last.Text)
	}
	return nil
}

func modifiable(k Kind) bool {
	return isOperand(k) || k == GroupClose || k == Modifier
}

func lastSignificant(toks []Token) Token {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].Kind != Space && toks[i].Kind != Other {
			return toks[i]
		}
	}
	return Token{}
}
