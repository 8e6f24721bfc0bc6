package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ClaimKind identifies what a claim asserts about the incident
type ClaimKind string

const (
	ClaimPeople   ClaimKind = "people"   // Number of people involved
	ClaimCars     ClaimKind = "cars"     // Number of vehicles involved
	ClaimWeapon   ClaimKind = "weapon"   // Whether a weapon was present
	ClaimTime     ClaimKind = "time"     // Time of the incident (seconds past midnight)
	ClaimSeverity ClaimKind = "severity" // Reported severity band
)

// AllClaimKinds lists every claim kind in breakdown order
var AllClaimKinds = []ClaimKind{ClaimPeople, ClaimCars, ClaimWeapon, ClaimTime, ClaimSeverity}

// Label returns the human-readable name used in report breakdowns
func (k ClaimKind) Label() string {
	switch k {
	case ClaimPeople:
		return "People Count"
	case ClaimCars:
		return "Vehicle Count"
	case ClaimWeapon:
		return "Weapon Presence"
	case ClaimTime:
		return "Time of Impact"
	case ClaimSeverity:
		return "Accident Severity"
	default:
		return string(k)
	}
}

// Severity is the ordinal severity band of a collision
type Severity int

const (
	SeverityUnknown  Severity = iota // Not stated / not detected
	SeverityMinor                    // Scratches, fender benders
	SeverityModerate                 // Dents, bumper damage
	SeveritySevere                   // Major or fatal collisions
)

func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "Minor"
	case SeverityModerate:
		return "Moderate"
	case SeveritySevere:
		return "Severe"
	default:
		return "Unknown"
	}
}

// ParseSeverity maps a band name to its ordinal. "critical" is an alias of Severe.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor":
		return SeverityMinor
	case "moderate":
		return SeverityModerate
	case "severe", "critical":
		return SeveritySevere
	default:
		return SeverityUnknown
	}
}

// MarshalText renders the band name so severities serialize as strings
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a band name
func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}

// Claim is a structured assertion extracted from the incident narrative.
// Only the value field matching Kind is meaningful.
type Claim struct {
	Kind       ClaimKind `json:"kind"`
	Count      int       `json:"count,omitempty"`    // people, cars
	Present    bool      `json:"present,omitempty"`  // weapon
	Seconds    int       `json:"seconds,omitempty"`  // time
	Severity   Severity  `json:"severity,omitempty"` // severity
	Confidence float64   `json:"confidence"`
	RawSpan    string    `json:"raw_span,omitempty"` // Text that produced the claim
}

// MarshalJSON writes the value field of the claim's kind even when it is
// zero, and leaves the others out. "No people" must still carry count 0.
func (c Claim) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind       ClaimKind `json:"kind"`
		Count      *int      `json:"count,omitempty"`
		Present    *bool     `json:"present,omitempty"`
		Seconds    *int      `json:"seconds,omitempty"`
		Severity   *Severity `json:"severity,omitempty"`
		Confidence float64   `json:"confidence"`
		RawSpan    string    `json:"raw_span,omitempty"`
	}
	w := wire{Kind: c.Kind, Confidence: c.Confidence, RawSpan: c.RawSpan}
	switch c.Kind {
	case ClaimPeople, ClaimCars:
		w.Count = &c.Count
	case ClaimWeapon:
		w.Present = &c.Present
	case ClaimTime:
		w.Seconds = &c.Seconds
	case ClaimSeverity:
		w.Severity = &c.Severity
	}
	return json.Marshal(w)
}

// Value returns the kind-appropriate value of the claim
func (c Claim) Value() any {
	switch c.Kind {
	case ClaimPeople, ClaimCars:
		return c.Count
	case ClaimWeapon:
		return c.Present
	case ClaimTime:
		return c.Seconds
	case ClaimSeverity:
		return c.Severity
	default:
		return nil
	}
}

// Display renders the claim value for report breakdowns
func (c Claim) Display() string {
	switch c.Kind {
	case ClaimWeapon:
		if c.Present {
			return "Present"
		}
		return "Absent"
	case ClaimTime:
		return FormatClock(c.Seconds)
	case ClaimSeverity:
		return c.Severity.String()
	default:
		return fmt.Sprint(c.Value())
	}
}

// FormatClock renders seconds past midnight as HH:MM:SS
func FormatClock(seconds int) string {
	if seconds < 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ClaimSet holds at most one claim per kind. A kind that is absent is unknown:
// it was never mentioned, which is not the same as a claimed zero or false.
type ClaimSet struct {
	claims map[ClaimKind]Claim
}

// NewClaimSet creates an empty claim set
func NewClaimSet() ClaimSet {
	return ClaimSet{claims: make(map[ClaimKind]Claim)}
}

// Set stores a claim, replacing any earlier claim of the same kind
func (s *ClaimSet) Set(c Claim) {
	if s.claims == nil {
		s.claims = make(map[ClaimKind]Claim)
	}
	s.claims[c.Kind] = c
}

// Get returns the claim for kind and whether it is known
func (s ClaimSet) Get(kind ClaimKind) (Claim, bool) {
	c, ok := s.claims[kind]
	return c, ok
}

// Has reports whether the text stated anything about kind
func (s ClaimSet) Has(kind ClaimKind) bool {
	_, ok := s.claims[kind]
	return ok
}

// Len returns the number of known claims
func (s ClaimSet) Len() int {
	return len(s.claims)
}

// Kinds returns the known kinds in canonical order
func (s ClaimSet) Kinds() []ClaimKind {
	var kinds []ClaimKind
	for _, k := range AllClaimKinds {
		if s.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Claims returns the known claims in canonical order
func (s ClaimSet) Claims() []Claim {
	var out []Claim
	for _, k := range s.Kinds() {
		out = append(out, s.claims[k])
	}
	return out
}
