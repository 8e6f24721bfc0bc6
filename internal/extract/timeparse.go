package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

var (
	// 10:30, 10:30:15, 10:30 pm, 10:30a.m.
	clockPattern = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s*([ap])\.?\s?m\b\.?)?`)

	// "time: 1O.3O", "at 2.15 pm": looser separators and OCR digit confusions.
	// A "." separator must be followed directly by the minutes so that
	// "at 4. So far" is not a clock reading.
	labelledTimePattern = regexp.MustCompile(`\b(?:time|at)\b[\s:\-]*([0-9oqdilzsgb|]{1,2})(?:\s*:\s*|\.)([0-9oqdilzsgb|]{2})(?:(?:\s*:\s*|\.)([0-9oqdilzsgb|]{2}))?(?:\s*([ap])\.?\s?m\b\.?)?`)
)

// ocrDigits maps characters commonly misread for digits
var ocrDigits = map[rune]rune{
	'o': '0', 'q': '0', 'd': '0',
	'i': '1', 'l': '1', '|': '1',
	'z': '2',
	's': '5',
	'g': '6',
	'b': '8',
}

const ocrConfidence = 0.8

type timeCandidate struct {
	pos   int
	claim model.Claim
}

// parseTime returns the first valid clock reading in norm
func parseTime(norm string) (model.Claim, bool) {
	var candidates []timeCandidate

	for _, m := range clockPattern.FindAllStringSubmatchIndex(norm, -1) {
		if followedByDigit(norm, m) {
			continue
		}
		seconds, ok := clockSeconds(group(norm, m, 1), group(norm, m, 2), group(norm, m, 3), group(norm, m, 4))
		if !ok {
			continue
		}
		candidates = append(candidates, timeCandidate{
			pos: m[2],
			claim: model.Claim{
				Kind:       model.ClaimTime,
				Seconds:    seconds,
				Confidence: 1.0,
				RawSpan:    strings.TrimSpace(norm[m[0]:m[1]]),
			},
		})
	}

	for _, m := range labelledTimePattern.FindAllStringSubmatchIndex(norm, -1) {
		if followedByDigit(norm, m) {
			continue
		}
		// OCR fixes repair digits, they do not make a number out of a word
		if !hasDigit(group(norm, m, 1)) || !hasDigit(group(norm, m, 2)) {
			continue
		}
		h, fixedH := fixOCR(group(norm, m, 1))
		minute, fixedM := fixOCR(group(norm, m, 2))
		sec, fixedS := fixOCR(group(norm, m, 3))
		seconds, ok := clockSeconds(h, minute, sec, group(norm, m, 4))
		if !ok {
			continue
		}
		confidence := 1.0
		if fixedH || fixedM || fixedS || strings.Contains(norm[m[2]:m[5]], ".") {
			confidence = ocrConfidence
		}
		candidates = append(candidates, timeCandidate{
			pos: m[2],
			claim: model.Claim{
				Kind:       model.ClaimTime,
				Seconds:    seconds,
				Confidence: confidence,
				RawSpan:    strings.TrimSpace(norm[m[0]:m[1]]),
			},
		})
	}

	if len(candidates) == 0 {
		return model.Claim{}, false
	}

	// Earliest reading wins; at the same position prefer the exact one
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].pos != candidates[j].pos {
			return candidates[i].pos < candidates[j].pos
		}
		return candidates[i].claim.Confidence > candidates[j].claim.Confidence
	})
	return candidates[0].claim, true
}

// clockSeconds validates a reading and converts it to seconds past midnight.
// meridiem is "a", "p" or empty for 24-hour readings.
func clockSeconds(hour, minute, second, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(minute)
	if err != nil || m > 59 {
		return 0, false
	}
	s := 0
	if second != "" {
		s, err = strconv.Atoi(second)
		if err != nil || s > 59 {
			return 0, false
		}
	}

	switch meridiem {
	case "a", "p":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
		if meridiem == "p" {
			h += 12
		}
	default:
		if h > 23 {
			return 0, false
		}
	}

	return h*3600 + m*60 + s, true
}

// fixOCR replaces misread characters with digits
func fixOCR(s string) (string, bool) {
	fixed := false
	out := []rune(s)
	for i, r := range out {
		if d, ok := ocrDigits[r]; ok {
			out[i] = d
			fixed = true
		}
	}
	return string(out), fixed
}

func group(s string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return s[m[2*n]:m[2*n+1]]
}

// followedByDigit rejects "10:305" style runs the pattern cannot exclude
func followedByDigit(s string, m []int) bool {
	end := m[1]
	return end < len(s) && s[end] >= '0' && s[end] <= '9'
}

func hasDigit(s string) bool {
	return strings.IndexAny(s, "0123456789") >= 0
}
