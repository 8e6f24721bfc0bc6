package scene

import (
	"sort"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// Aggregator reduces a noisy sequence of frames to stable scene counts
type Aggregator struct {
	cfg     model.AggregationConfig
	classOf map[string]string // Detector label -> scene class
}

// NewAggregator creates an aggregator with the given class aliases
func NewAggregator(cfg model.AggregationConfig) *Aggregator {
	return &Aggregator{cfg: cfg, classOf: invertAliases(cfg.ClassAliases)}
}

// Aggregate returns the scene summary of frames. Counts are the mode of the
// per-frame counts, ties going to the larger count, so a single flickering
// detection cannot move the result. No frames means every field is unknown.
func (a *Aggregator) Aggregate(frames []model.FrameDetection) model.SceneSummary {
	summary := model.SceneSummary{FrameCount: len(frames)}
	if len(frames) == 0 {
		return summary
	}

	summary.Confidence = make(map[string]float64)

	for _, class := range []string{model.SceneClassPeople, model.SceneClassCars} {
		counts := make([]int, len(frames))
		for i, f := range frames {
			counts[i] = a.frameCount(f, class)
		}
		mode := modeLargest(counts)

		var confidences []float64
		for i, f := range frames {
			if counts[i] == mode {
				confidences = append(confidences, a.frameConfidence(f, class))
			}
		}

		switch class {
		case model.SceneClassPeople:
			summary.People = model.IntPtr(mode)
		case model.SceneClassCars:
			summary.Cars = model.IntPtr(mode)
		}
		summary.Confidence[class] = mean(confidences)
	}

	present, confidence, known := a.weapon(frames)
	if known {
		summary.WeaponPresent = model.BoolPtr(present)
	}
	if confidence > 0 {
		summary.Confidence[model.SceneClassWeapon] = confidence
	}

	return summary
}

// weapon ORs the per-frame weapon confidences against the threshold.
// Nothing reported is a confident "no"; reports that never reach the
// threshold leave the question open.
func (a *Aggregator) weapon(frames []model.FrameDetection) (present bool, maxConfidence float64, known bool) {
	reported := false
	for _, f := range frames {
		for _, c := range a.weaponConfidences(f) {
			reported = true
			if c > maxConfidence {
				maxConfidence = c
			}
		}
	}

	switch {
	case !reported:
		return false, 0, true
	case maxConfidence >= a.cfg.WeaponThreshold:
		return true, maxConfidence, true
	default:
		return false, maxConfidence, false
	}
}

func (a *Aggregator) weaponConfidences(f model.FrameDetection) []float64 {
	out := append([]float64(nil), f.WeaponConfidences...)
	for _, b := range f.Boxes {
		if a.class(b.Class) == model.SceneClassWeapon {
			out = append(out, b.Confidence)
		}
	}
	if len(out) > 0 {
		return out
	}

	// Counted but without individual scores
	if n := a.frameCount(f, model.SceneClassWeapon); n > 0 {
		c := a.frameConfidence(f, model.SceneClassWeapon)
		for i := 0; i < n; i++ {
			out = append(out, c)
		}
	}
	return out
}

// frameCount sums the counts of every label aliased to class. Frames that
// carry only boxes are counted from the boxes.
func (a *Aggregator) frameCount(f model.FrameDetection, class string) int {
	if len(f.Counts) == 0 {
		n := 0
		for _, b := range f.Boxes {
			if a.class(b.Class) == class {
				n++
			}
		}
		return n
	}

	total := 0
	for label, n := range f.Counts {
		if n > 0 && a.class(label) == class {
			total += n
		}
	}
	return total
}

// frameConfidence is the detector's confidence for class in one frame:
// the reported class confidence, else the mean box confidence, else 1.0
func (a *Aggregator) frameConfidence(f model.FrameDetection, class string) float64 {
	var reported []float64
	for label, c := range f.ClassConfidences {
		if a.class(label) == class {
			reported = append(reported, c)
		}
	}
	if len(reported) > 0 {
		sort.Float64s(reported)
		return mean(reported)
	}

	var boxes []float64
	for _, b := range f.Boxes {
		if a.class(b.Class) == class {
			boxes = append(boxes, b.Confidence)
		}
	}
	if len(boxes) > 0 {
		return mean(boxes)
	}
	return 1.0
}

func (a *Aggregator) class(label string) string {
	return a.classOf[strings.ToLower(strings.TrimSpace(label))]
}

func invertAliases(aliases map[string][]string) map[string]string {
	classOf := make(map[string]string)
	for class, labels := range aliases {
		for _, label := range labels {
			classOf[strings.ToLower(label)] = class
		}
	}
	return classOf
}

// modeLargest returns the most frequent value, preferring the larger value on ties
func modeLargest(values []int) int {
	freq := make(map[int]int)
	for _, v := range values {
		freq[v]++
	}

	best, bestFreq := 0, 0
	for v, n := range freq {
		if n > bestFreq || (n == bestFreq && v > best) {
			best, bestFreq = v, n
		}
	}
	return best
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
