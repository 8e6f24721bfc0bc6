package model

import "time"

// ResultTag classifies how a claim compares to the video evidence
type ResultTag string

const (
	ResultSupported    ResultTag = "supported"
	ResultPartial      ResultTag = "partial"
	ResultUnsupported  ResultTag = "unsupported"
	ResultContradicted ResultTag = "contradicted"
	ResultUnknown      ResultTag = "unknown"
)

// ClaimResult is one row of the consistency breakdown
type ClaimResult struct {
	ClaimType     ClaimKind `json:"claim_type"`
	ClaimValue    string    `json:"claim_value"`
	DetectedValue string    `json:"video_value"`
	Result        ResultTag `json:"result"`
	Deduction     int       `json:"deduction"` // Points subtracted (<= 0)
	Note          string    `json:"note"`
}

// ConsistencyReport is the explainable outcome of reconciling text against video
type ConsistencyReport struct {
	OverallScore int           `json:"overall_score"` // 0-100
	Details      []ClaimResult `json:"details"`
}

// VideoAnalysis surfaces the scene summary, collision and severity for inspection.
// Nil fields are unknown.
type VideoAnalysis struct {
	People              *int     `json:"people"`
	Cars                *int     `json:"cars"`
	WeaponPresent       *bool    `json:"weapon_present"`
	CollisionDetected   bool     `json:"collision_detected"`
	CollisionTimestamp  *float64 `json:"collision_timestamp"`
	CollisionConfidence float64  `json:"collision_confidence"`
	Severity            *string  `json:"severity"`
	SeverityConfidence  float64  `json:"severity_confidence"`
	FramesAnalyzed      int      `json:"frames_analyzed"`
}

// TextClaims surfaces the extracted claim set for inspection. Nil fields are unknown.
type TextClaims struct {
	People         *int    `json:"people"`
	Cars           *int    `json:"cars"`
	WeaponPresent  *bool   `json:"weapon_present"`
	TimeSeconds    *int    `json:"time_seconds"`
	SeverityReport *string `json:"severity_report"`
	RawTextSnippet string  `json:"raw_text_snippet"`
}

// Analysis is the complete outcome of one analysis request
type Analysis struct {
	ID            string            `json:"id"`
	Subject       string            `json:"subject,omitempty"` // Manifest name, file name or URL
	AnalyzedAt    time.Time         `json:"analyzed_at"`
	Report        ConsistencyReport `json:"report"`
	VideoAnalysis VideoAnalysis     `json:"video_analysis"`
	TextClaims    TextClaims        `json:"text_claims"`
	Warnings      []string          `json:"warnings,omitempty"` // Degraded inputs (no frames, dropped frames)

	LLM *LLMSummary `json:"llm,omitempty"` // Optional narrative, never affects the score
}

// LLMSummary contains the optional LLM-generated narrative
type LLMSummary struct {
	Enabled   bool     `json:"enabled"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	SummaryMD string   `json:"summary_md,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

const snippetLength = 100

// NewTextClaims builds the read-only text view of a claim set
func NewTextClaims(claims ClaimSet, rawText string) TextClaims {
	view := TextClaims{RawTextSnippet: Snippet(rawText)}
	if c, ok := claims.Get(ClaimPeople); ok {
		view.People = IntPtr(c.Count)
	}
	if c, ok := claims.Get(ClaimCars); ok {
		view.Cars = IntPtr(c.Count)
	}
	if c, ok := claims.Get(ClaimWeapon); ok {
		view.WeaponPresent = BoolPtr(c.Present)
	}
	if c, ok := claims.Get(ClaimTime); ok {
		view.TimeSeconds = IntPtr(c.Seconds)
	}
	if c, ok := claims.Get(ClaimSeverity); ok {
		s := c.Severity.String()
		view.SeverityReport = &s
	}
	return view
}

// NewVideoAnalysis builds the read-only video view
func NewVideoAnalysis(scene SceneSummary, collision CollisionEvent, severity SeverityAssessment) VideoAnalysis {
	view := VideoAnalysis{
		People:              scene.People,
		Cars:                scene.Cars,
		WeaponPresent:       scene.WeaponPresent,
		CollisionDetected:   collision.Detected,
		CollisionTimestamp:  collision.Timestamp,
		CollisionConfidence: collision.Confidence,
		FramesAnalyzed:      scene.FrameCount,
	}
	if severity.Severity != SeverityUnknown {
		s := severity.Severity.String()
		view.Severity = &s
		view.SeverityConfidence = severity.Confidence
	}
	return view
}

// Snippet shortens text for display, marking truncation with an ellipsis
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
