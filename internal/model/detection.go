package model

// BoundingBox is a detector region in frame coordinates (x1,y1 top-left; x2,y2 bottom-right)
type BoundingBox struct {
	Class      string  `json:"class"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	TrackID    *int    `json:"track_id,omitempty"` // Set when the detector tracks identities
}

// Width returns the box width (never negative)
func (b BoundingBox) Width() float64 {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height returns the box height (never negative)
func (b BoundingBox) Height() float64 {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Area returns the box area
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box centre point
func (b BoundingBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// FrameDetection is the detector's evidence for one sampled instant of the clip.
// Produced externally; the engine only reads it.
type FrameDetection struct {
	FrameNumber       int                `json:"frame_number"`
	Timestamp         float64            `json:"timestamp"`                    // Seconds from clip start
	Counts            map[string]int     `json:"counts"`                       // Detector label -> objects in frame
	ClassConfidences  map[string]float64 `json:"class_confidences,omitempty"`  // Detector label -> mean confidence
	WeaponConfidences []float64          `json:"weapon_confidences,omitempty"` // One entry per weapon detection
	Boxes             []BoundingBox      `json:"boxes,omitempty"`
}

// SceneSummary is the aggregated, noise-resistant description of the clip.
// Nil fields are unknown (no usable frames), never zero.
type SceneSummary struct {
	People        *int               `json:"people"`
	Cars          *int               `json:"cars"`
	WeaponPresent *bool              `json:"weapon_present"`
	Confidence    map[string]float64 `json:"confidence,omitempty"` // Scene class -> aggregate confidence
	FrameCount    int                `json:"frame_count"`
}

// CollisionEvent is the outcome of the collision state machine
type CollisionEvent struct {
	Detected        bool     `json:"detected"`
	Timestamp       *float64 `json:"timestamp"`               // First Impact frame
	EndTimestamp    *float64 `json:"end_timestamp,omitempty"` // Last Impact frame
	Confidence      float64  `json:"confidence"`              // Max overlap during Impact, [0,1]
	ImpactFrames    int      `json:"impact_frames,omitempty"`
	MotionMagnitude float64  `json:"motion_magnitude,omitempty"` // Peak relative velocity during Impact
}

// NoCollision is the event reported when Impact was never entered
func NoCollision() CollisionEvent {
	return CollisionEvent{Detected: false, Timestamp: nil, Confidence: 0}
}

// SeverityAssessment is the classifier output for a detected collision
type SeverityAssessment struct {
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"` // Certainty of the band, not of the collision
	Composite  float64  `json:"composite"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v
func BoolPtr(v bool) *bool { return &v }

// FloatPtr returns a pointer to v
func FloatPtr(v float64) *float64 { return &v }
