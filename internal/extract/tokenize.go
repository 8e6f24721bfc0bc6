package extract

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord     tokenKind = iota
	tokNumber             // Integer literal
	tokClock              // 10:30, 14:05:09
	tokDecimal            // 2.5
	tokBoundary           // Sentence, clause or line break; windows never cross it
)

type token struct {
	kind  tokenKind
	text  string
	start int // Byte offsets into the normalised text
	end   int
}

// normalize lowercases text and folds typographic apostrophes;
// whitespace is handled by the tokenizer
func normalize(text string) string {
	return strings.ReplaceAll(strings.ToLower(text), "’", "'")
}

// tokenize splits normalised text into words, numbers and boundaries.
// Commas, colons and other punctuation only separate tokens.
func tokenize(text string) []token {
	var tokens []token
	runes := []rune(text)
	offsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += len(string(r))
	}
	offsets[len(runes)] = pos

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case isWordRune(r):
			start := i
			digitsOnly := unicode.IsDigit(r)
			separator := rune(0)
			for i < len(runes) {
				c := runes[i]
				if isWordRune(c) || c == '\'' || c == '-' {
					if !unicode.IsDigit(c) {
						digitsOnly = false
					}
					i++
					continue
				}
				// Keep "10:30", "2.5" and "1,000" together
				if (c == ':' || c == '.' || c == ',') && digitsOnly && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
					if separator == 0 && c != ',' {
						separator = c
					}
					i++
					continue
				}
				break
			}
			word := strings.Trim(string(runes[start:i]), "'-")
			kind := tokWord
			switch {
			case digitsOnly && separator == ':':
				kind = tokClock
			case digitsOnly && separator == '.':
				kind = tokDecimal
			case digitsOnly:
				kind = tokNumber
			}
			tokens = append(tokens, token{kind: kind, text: word, start: offsets[start], end: offsets[i]})
		case isBoundaryRune(r):
			tokens = append(tokens, token{kind: tokBoundary, text: string(r), start: offsets[i], end: offsets[i+1]})
			i++
		default:
			i++
		}
	}
	return tokens
}

// splitNumeralCompounds breaks "two-car" and "3-vehicle" into a numeral and
// the rest, so the noun can bind to its count
func splitNumeralCompounds(norm string, tokens []token, isNumeral func(string) bool) []token {
	out := make([]token, 0, len(tokens))
	for _, t := range tokens {
		if t.kind != tokWord {
			out = append(out, t)
			continue
		}
		raw := norm[t.start:t.end]
		dash := strings.IndexByte(raw, '-')
		if dash <= 0 || dash == len(raw)-1 {
			out = append(out, t)
			continue
		}
		head, rest := raw[:dash], strings.Trim(raw[dash+1:], "'-")
		headKind := tokWord
		switch {
		case isDigits(head):
			headKind = tokNumber
		case isNumeral(head):
		default:
			out = append(out, t)
			continue
		}
		if rest == "" {
			out = append(out, t)
			continue
		}
		out = append(out,
			token{kind: headKind, text: head, start: t.start, end: t.start + dash},
			token{kind: tokWord, text: rest, start: t.start + dash + 1, end: t.end},
		)
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// Sentence terminators, line breaks and commas close every window
func isBoundaryRune(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ',', '\n':
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hasNegatedContraction matches "wasn't", "didn't", "isn't" and friends
func hasNegatedContraction(word string) bool {
	return strings.HasSuffix(word, "n't")
}

// numeralValue resolves a token to an integer via digits or the lexicon
func (l *Lexicon) numeralValue(t token) (Numeral, bool) {
	switch t.kind {
	case tokNumber:
		n, err := strconv.Atoi(strings.ReplaceAll(t.text, ",", ""))
		if err != nil || n < 0 {
			return Numeral{}, false
		}
		return Numeral{Value: n, Confidence: 1.0}, true
	case tokWord:
		num, ok := l.Numerals[t.text]
		return num, ok
	default:
		return Numeral{}, false
	}
}
