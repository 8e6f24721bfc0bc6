package extract

import (
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// ClaimExtractor turns an incident narrative into a ClaimSet
type ClaimExtractor struct {
	lexicon  *Lexicon
	severity []severityPhrase
}

type severityPhrase struct {
	words []string
	term  SeverityTerm
}

// NewClaimExtractor creates an extractor over the default lexicon
func NewClaimExtractor() *ClaimExtractor {
	return NewClaimExtractorWithLexicon(DefaultLexicon())
}

// NewClaimExtractorWithLexicon creates an extractor over a custom lexicon
func NewClaimExtractorWithLexicon(lexicon *Lexicon) *ClaimExtractor {
	e := &ClaimExtractor{lexicon: lexicon}
	for _, term := range lexicon.SeverityTerms {
		e.severity = append(e.severity, severityPhrase{
			words: strings.Fields(term.Phrase),
			term:  term,
		})
	}
	return e
}

// Extract returns every claim the text supports. It never fails: text with
// nothing recognisable yields an empty set.
//
// Counts, weapon and severity follow last-match-wins, since narratives revise
// themselves ("two cars... actually three cars"). Time takes the first valid
// clock reading.
func (e *ClaimExtractor) Extract(text string) model.ClaimSet {
	claims := model.NewClaimSet()
	norm := normalize(text)
	lex := e.lexicon
	tokens := splitNumeralCompounds(norm, tokenize(norm), lex.isNumeralWord)

	for i, t := range tokens {
		if t.kind != tokWord {
			continue
		}

		if kind, ok := lex.countKind(t.text); ok {
			if c, ok := e.countClaim(norm, tokens, i, kind); ok {
				claims.Set(c)
			}
			continue
		}

		if containsWord(lex.WeaponNouns, t.text) {
			claims.Set(model.Claim{
				Kind:       model.ClaimWeapon,
				Present:    !e.negated(tokens, i, true),
				Confidence: 1.0,
				RawSpan:    spanAround(norm, tokens, i, lex.NegationLookback),
			})
			continue
		}

		if containsWord(lex.WeaponAbsentTerms, t.text) {
			claims.Set(model.Claim{
				Kind:       model.ClaimWeapon,
				Present:    false,
				Confidence: 1.0,
				RawSpan:    t.text,
			})
			continue
		}

		if phrase, ok := e.severityAt(tokens, i); ok && !e.negated(tokens, i, false) {
			last := i + len(phrase.words) - 1
			claims.Set(model.Claim{
				Kind:       model.ClaimSeverity,
				Severity:   phrase.term.Severity,
				Confidence: phrase.term.Confidence,
				RawSpan:    norm[t.start:tokens[last].end],
			})
		}
	}

	if c, ok := parseTime(norm); ok {
		claims.Set(c)
	}

	return claims
}

// countClaim binds the noun at tokens[i] to a numeral: nearest in the
// lookback window first, else the nearest exact numeral in the lookahead
// window that does not belong to a following noun.
func (e *ClaimExtractor) countClaim(norm string, tokens []token, i int, kind model.ClaimKind) (model.Claim, bool) {
	lex := e.lexicon
	sawOf := false

	for j := i - 1; j >= 0 && i-j <= lex.Lookback; j-- {
		t := tokens[j]
		if t.kind == tokBoundary || (t.kind == tokWord && lex.isNoun(t.text)) {
			break
		}
		num, ok := lex.numeralValue(t)
		if !ok {
			if t.text == "of" {
				sawOf = true
			}
			continue
		}
		// "a crowd of people" is not one person
		if num.Fuzzy && (sawOf || i-j > fuzzyReach) {
			continue
		}
		count, first := num.Value, j
		// "not a single person"
		if num.Fuzzy && count > 0 {
			if k, ok := e.countNegation(tokens, j); ok {
				count, first = 0, k
			}
		}
		return model.Claim{
			Kind:       kind,
			Count:      count,
			Confidence: num.Confidence,
			RawSpan:    norm[tokens[first].start:tokens[i].end],
		}, true
	}

	for j := i + 1; j < len(tokens) && j-i <= lex.Lookahead; j++ {
		t := tokens[j]
		if t.kind == tokBoundary || (t.kind == tokWord && lex.isNoun(t.text)) {
			break
		}
		num, ok := lex.numeralValue(t)
		if !ok || num.Fuzzy || e.boundForward(tokens, j) {
			continue
		}
		return model.Claim{
			Kind:       kind,
			Count:      num.Value,
			Confidence: num.Confidence,
			RawSpan:    norm[tokens[i].start:t.end],
		}, true
	}

	return model.Claim{}, false
}

// fuzzyReach is how far before the noun an article-like numeral may sit
const fuzzyReach = 2

// boundForward reports whether the numeral at tokens[j] precedes a noun of
// its own within the lookback window
func (e *ClaimExtractor) boundForward(tokens []token, j int) bool {
	lex := e.lexicon
	for k := j + 1; k < len(tokens) && k-j <= lex.Lookback; k++ {
		t := tokens[k]
		if t.kind == tokBoundary {
			return false
		}
		if t.kind == tokWord && lex.isNoun(t.text) {
			return true
		}
	}
	return false
}

// countNegation returns the index of a count negation marker before the
// numeral at tokens[j]
func (e *ClaimExtractor) countNegation(tokens []token, j int) (int, bool) {
	lex := e.lexicon
	return e.scanBack(tokens, j, func(word string) bool {
		return containsWord(lex.CountNegationMarkers, word) || hasNegatedContraction(word)
	})
}

// scanBack walks back from tokens[i] over at most NegationLookback words,
// not counting fillers, and returns the first word that matches
func (e *ClaimExtractor) scanBack(tokens []token, i int, match func(string) bool) (int, bool) {
	lex := e.lexicon
	seen := 0
	for j := i - 1; j >= 0 && seen < lex.NegationLookback; j-- {
		t := tokens[j]
		if t.kind == tokBoundary {
			break
		}
		if t.kind == tokWord && match(t.text) {
			return j, true
		}
		if t.kind != tokWord || !containsWord(lex.NegationFillers, t.text) {
			seen++
		}
	}
	return 0, false
}

// negated looks for a negation marker around tokens[i] without crossing a
// boundary. Trailing markers are only checked when trailing is set, and only
// the ones that read naturally after a noun ("weapons were not found").
func (e *ClaimExtractor) negated(tokens []token, i int, trailing bool) bool {
	lex := e.lexicon
	if _, ok := e.scanBack(tokens, i, lex.isNegation); ok {
		return true
	}
	if !trailing {
		return false
	}
	for j := i + 1; j < len(tokens) && j-i <= lex.NegationLookahead; j++ {
		t := tokens[j]
		if t.kind == tokBoundary {
			break
		}
		if t.kind != tokWord {
			continue
		}
		// "weapon: no" negates, "a gun and no injuries" does not
		if j == i+1 && t.text == "no" {
			return true
		}
		if containsWord(lex.TrailingNegationMarkers, t.text) || hasNegatedContraction(t.text) {
			return true
		}
	}
	return false
}

// severityAt matches a severity phrase starting at tokens[i]
func (e *ClaimExtractor) severityAt(tokens []token, i int) (severityPhrase, bool) {
	for _, phrase := range e.severity {
		if i+len(phrase.words) > len(tokens) {
			continue
		}
		matched := true
		for k, w := range phrase.words {
			t := tokens[i+k]
			if t.kind != tokWord || t.text != w {
				matched = false
				break
			}
		}
		if matched {
			return phrase, true
		}
	}
	return severityPhrase{}, false
}

// spanAround returns the text of radius tokens either side of tokens[i],
// clipped at boundaries
func spanAround(norm string, tokens []token, i, radius int) string {
	first, last := i, i
	for j := i - 1; j >= 0 && i-j <= radius && tokens[j].kind != tokBoundary; j-- {
		first = j
	}
	for j := i + 1; j < len(tokens) && j-i <= radius && tokens[j].kind != tokBoundary; j++ {
		last = j
	}
	return norm[tokens[first].start:tokens[last].end]
}
