package scene

import "github.com/ppiankov/evidencecheck/internal/model"

// SeverityClassifier maps a collision to a severity band
type SeverityClassifier struct {
	cfg model.SeverityConfig
}

// NewSeverityClassifier creates a classifier with the given weights and bands
func NewSeverityClassifier(cfg model.SeverityConfig) *SeverityClassifier {
	return &SeverityClassifier{cfg: cfg}
}

// Classify combines collision confidence and motion magnitude into a
// composite in [0,1] and bands it. The returned confidence is how far the
// composite sits from the nearest band boundary, relative to half the band
// width: 1 in the middle of a band, 0 on a boundary. No collision, no severity.
func (c *SeverityClassifier) Classify(event model.CollisionEvent, motion float64) model.SeverityAssessment {
	if !event.Detected {
		return model.SeverityAssessment{Severity: model.SeverityUnknown}
	}

	motionTerm := 0.0
	if c.cfg.MotionScale > 0 {
		motionTerm = clamp01(motion / c.cfg.MotionScale)
	}
	composite := clamp01(c.cfg.CollisionWeight*clamp01(event.Confidence) + c.cfg.MotionWeight*motionTerm)

	moderate, severe := c.cfg.ModerateThreshold, c.cfg.SevereThreshold

	var band model.Severity
	var distance, halfWidth float64
	switch {
	case composite < moderate:
		band = model.SeverityMinor
		distance, halfWidth = moderate-composite, moderate/2
	case composite < severe:
		band = model.SeverityModerate
		distance = min(composite-moderate, severe-composite)
		halfWidth = (severe - moderate) / 2
	default:
		band = model.SeveritySevere
		distance, halfWidth = composite-severe, (1-severe)/2
	}

	confidence := 1.0
	if halfWidth > 0 {
		confidence = clamp01(distance / halfWidth)
	}

	return model.SeverityAssessment{
		Severity:   band,
		Confidence: confidence,
		Composite:  composite,
	}
}
