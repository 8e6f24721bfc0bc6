package validate

import (
	"fmt"
	"math"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// Issue describes one problem found in the detector output
type Issue struct {
	FrameNumber int
	Dropped     bool // Frame removed entirely (otherwise a field was clamped)
	Reason      string
}

func (i Issue) String() string {
	if i.Dropped {
		return fmt.Sprintf("frame %d dropped: %s", i.FrameNumber, i.Reason)
	}
	return fmt.Sprintf("frame %d: %s", i.FrameNumber, i.Reason)
}

// Frames sanitises detector output before aggregation.
// Frames with a NaN, infinite or negative timestamp, or one earlier than the
// previous kept frame, are dropped. Negative counts are clamped to zero,
// confidences into [0,1], and boxes with non-finite coordinates are removed.
// The input slice is not modified.
func Frames(frames []model.FrameDetection) ([]model.FrameDetection, []Issue) {
	kept := make([]model.FrameDetection, 0, len(frames))
	var issues []Issue

	last := math.Inf(-1)
	for _, frame := range frames {
		ts := frame.Timestamp
		switch {
		case math.IsNaN(ts) || math.IsInf(ts, 0):
			issues = append(issues, Issue{FrameNumber: frame.FrameNumber, Dropped: true, Reason: "timestamp is not a number"})
			continue
		case ts < 0:
			issues = append(issues, Issue{FrameNumber: frame.FrameNumber, Dropped: true, Reason: fmt.Sprintf("negative timestamp %.3f", ts)})
			continue
		case ts < last:
			issues = append(issues, Issue{FrameNumber: frame.FrameNumber, Dropped: true, Reason: fmt.Sprintf("out of order (%.3f after %.3f)", ts, last)})
			continue
		}
		last = ts

		clean, fixes := sanitizeFrame(frame)
		for _, fix := range fixes {
			issues = append(issues, Issue{FrameNumber: frame.FrameNumber, Reason: fix})
		}
		kept = append(kept, clean)
	}

	return kept, issues
}

func sanitizeFrame(frame model.FrameDetection) (model.FrameDetection, []string) {
	var fixes []string
	out := frame

	if frame.Counts != nil {
		out.Counts = make(map[string]int, len(frame.Counts))
		for label, n := range frame.Counts {
			if n < 0 {
				fixes = append(fixes, fmt.Sprintf("negative count %d for %q clamped to 0", n, label))
				n = 0
			}
			out.Counts[label] = n
		}
	}

	if frame.ClassConfidences != nil {
		out.ClassConfidences = make(map[string]float64, len(frame.ClassConfidences))
		for label, c := range frame.ClassConfidences {
			fixed, ok := unitInterval(c)
			if !ok {
				fixes = append(fixes, fmt.Sprintf("confidence %v for %q clamped to %.2f", c, label, fixed))
			}
			out.ClassConfidences[label] = fixed
		}
	}

	if frame.WeaponConfidences != nil {
		out.WeaponConfidences = make([]float64, len(frame.WeaponConfidences))
		for i, c := range frame.WeaponConfidences {
			fixed, ok := unitInterval(c)
			if !ok {
				fixes = append(fixes, fmt.Sprintf("weapon confidence %v clamped to %.2f", c, fixed))
			}
			out.WeaponConfidences[i] = fixed
		}
	}

	if frame.Boxes != nil {
		out.Boxes = make([]model.BoundingBox, 0, len(frame.Boxes))
		for _, box := range frame.Boxes {
			if !finite(box.X1, box.Y1, box.X2, box.Y2) {
				fixes = append(fixes, fmt.Sprintf("%s box with non-finite coordinates removed", box.Class))
				continue
			}
			if box.X2 < box.X1 {
				box.X1, box.X2 = box.X2, box.X1
			}
			if box.Y2 < box.Y1 {
				box.Y1, box.Y2 = box.Y2, box.Y1
			}
			fixed, ok := unitInterval(box.Confidence)
			if !ok {
				fixes = append(fixes, fmt.Sprintf("%s box confidence %v clamped to %.2f", box.Class, box.Confidence, fixed))
			}
			box.Confidence = fixed
			out.Boxes = append(out.Boxes, box)
		}
	}

	return out, fixes
}

// unitInterval clamps c into [0,1]; NaN becomes 0. ok is false when c changed.
func unitInterval(c float64) (float64, bool) {
	switch {
	case math.IsNaN(c):
		return 0, false
	case c < 0:
		return 0, false
	case c > 1:
		return 1, false
	default:
		return c, true
	}
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
