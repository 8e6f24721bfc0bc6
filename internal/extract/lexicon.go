package extract

import "github.com/ppiankov/evidencecheck/internal/model"

// Numeral is a number word or article the extractor understands
type Numeral struct {
	Value      int
	Confidence float64
	Fuzzy      bool // Only accepted immediately before a noun (lookback), never after it
}

// SeverityTerm maps a word or phrase to a severity band
type SeverityTerm struct {
	Phrase     string
	Severity   model.Severity
	Confidence float64
}

// Lexicon holds every word list the extractor consumes. Extending the
// extractor means editing these tables, not the scan routine.
type Lexicon struct {
	Numerals                map[string]Numeral
	CountNouns              map[model.ClaimKind][]string
	WeaponNouns             []string
	WeaponAbsentTerms       []string // Standalone words that state no weapon was present
	NegationMarkers         []string
	TrailingNegationMarkers []string // Markers that negate a noun they follow
	CountNegationMarkers    []string // Markers that turn "a single person" into zero people
	NegationFillers         []string // Skipped when measuring the negation window ("no sign of a weapon")
	SeverityTerms           []SeverityTerm

	Lookback          int // Tokens searched before a noun for its numeral
	Lookahead         int // Tokens searched after a noun for its numeral
	NegationLookback  int
	NegationLookahead int
}

// DefaultLexicon returns the built-in English lexicon
func DefaultLexicon() *Lexicon {
	numerals := map[string]Numeral{
		"zero": {0, 1.0, false}, "one": {1, 1.0, false}, "two": {2, 1.0, false},
		"three": {3, 1.0, false}, "four": {4, 1.0, false}, "five": {5, 1.0, false},
		"six": {6, 1.0, false}, "seven": {7, 1.0, false}, "eight": {8, 1.0, false},
		"nine": {9, 1.0, false}, "ten": {10, 1.0, false}, "eleven": {11, 1.0, false},
		"twelve": {12, 1.0, false},

		"a": {1, 0.7, true}, "an": {1, 0.7, true},
		"single": {1, 0.9, true}, "lone": {1, 0.9, true},
		"no": {0, 0.9, true}, "none": {0, 0.9, true},
		"couple": {2, 0.8, true}, "pair": {2, 0.8, true},
		"dozen": {12, 0.8, true},
	}

	return &Lexicon{
		Numerals:   numerals,
		CountNouns: map[model.ClaimKind][]string{
			model.ClaimPeople: {
				"person", "persons", "people", "pedestrian", "pedestrians",
				"individual", "individuals", "man", "men", "woman", "women",
			},
			model.ClaimCars: {
				"car", "cars", "vehicle", "vehicles", "sedan", "sedans",
				"suv", "suvs", "truck", "trucks", "van", "vans", "auto", "autos",
			},
		},
		WeaponNouns: []string{
			"gun", "guns", "knife", "knives", "weapon", "weapons",
			"firearm", "firearms", "pistol", "pistols", "rifle", "rifles",
		},
		WeaponAbsentTerms:       []string{"unarmed"},
		NegationMarkers:         []string{"no", "not", "without", "absent", "none", "never"},
		TrailingNegationMarkers: []string{"not", "none", "absent", "never"},
		CountNegationMarkers:    []string{"not", "never"},
		NegationFillers:         []string{"of", "any", "a", "an", "the"},
		SeverityTerms:           []SeverityTerm{
			{"minor", model.SeverityMinor, 1.0},
			{"scratch", model.SeverityMinor, 1.0},
			{"scratches", model.SeverityMinor, 1.0},
			{"scuff", model.SeverityMinor, 1.0},
			{"fender bender", model.SeverityMinor, 1.0},
			{"fender-bender", model.SeverityMinor, 1.0},
			{"moderate", model.SeverityModerate, 1.0},
			{"medium", model.SeverityModerate, 1.0},
			{"dent", model.SeverityModerate, 1.0},
			{"bumper", model.SeverityModerate, 1.0},
			{"severe", model.SeveritySevere, 1.0},
			{"critical", model.SeveritySevere, 1.0},
			{"fatal", model.SeveritySevere, 1.0},
			{"major", model.SeveritySevere, 1.0},
			{"crushed", model.SeveritySevere, 1.0},
			{"destroyed", model.SeveritySevere, 1.0},

			// OCR and handwriting misreadings
			{"sever", model.SeveritySevere, 0.8},
			{"sevre", model.SeveritySevere, 0.8},
			{"svere", model.SeveritySevere, 0.8},
			{"seyere", model.SeveritySevere, 0.8},
			{"5evere", model.SeveritySevere, 0.8},
			{"severc", model.SeveritySevere, 0.8},
			{"sevcre", model.SeveritySevere, 0.8},
			{"fata1", model.SeveritySevere, 0.8},
			{"fatai", model.SeveritySevere, 0.8},
			{"fatsl", model.SeveritySevere, 0.8},
			{"mincr", model.SeverityMinor, 0.8},
			{"minar", model.SeverityMinor, 0.8},
			{"rninor", model.SeverityMinor, 0.8},
			{"mlnor", model.SeverityMinor, 0.8},
			{"ninor", model.SeverityMinor, 0.8},
			{"mimor", model.SeverityMinor, 0.8},
			{"moberate", model.SeverityModerate, 0.8},
			{"noderate", model.SeverityModerate, 0.8},
			{"modrate", model.SeverityModerate, 0.8},
			{"modr8", model.SeverityModerate, 0.8},
		},
		Lookback:          3,
		Lookahead:         2,
		NegationLookback:  3,
		NegationLookahead: 2,
	}
}

// countKind returns the claim kind a count noun belongs to
func (l *Lexicon) countKind(word string) (model.ClaimKind, bool) {
	for kind, nouns := range l.CountNouns {
		if containsWord(nouns, word) {
			return kind, true
		}
	}
	return "", false
}

func (l *Lexicon) isNoun(word string) bool {
	if _, ok := l.countKind(word); ok {
		return true
	}
	return containsWord(l.WeaponNouns, word)
}

func (l *Lexicon) isNumeralWord(word string) bool {
	_, ok := l.Numerals[word]
	return ok
}

func (l *Lexicon) isNegation(word string) bool {
	return containsWord(l.NegationMarkers, word) || hasNegatedContraction(word)
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}
