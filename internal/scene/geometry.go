package scene

import (
	"math"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// IoU returns the intersection over union of two boxes
func IoU(a, b model.BoundingBox) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}

	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// normalizedDistance is the centre distance of two boxes in units of their
// mean diagonal, so closing speeds compare across camera distances
func normalizedDistance(a, b model.BoundingBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	d := math.Hypot(ax-bx, ay-by)

	diag := (math.Hypot(a.Width(), a.Height()) + math.Hypot(b.Width(), b.Height())) / 2
	if diag <= 0 {
		return d
	}
	return d / diag
}

type boxPair struct {
	a, b     model.BoundingBox
	distance float64
}

// closestPair returns the pair of boxes with the smallest normalised distance
func closestPair(boxes []model.BoundingBox) (boxPair, bool) {
	best := boxPair{distance: math.Inf(1)}
	found := false
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			if d := normalizedDistance(boxes[i], boxes[j]); d < best.distance {
				best = boxPair{a: boxes[i], b: boxes[j], distance: d}
				found = true
			}
		}
	}
	return best, found
}

// maxIoU returns the largest overlap between any two boxes
func maxIoU(boxes []model.BoundingBox) float64 {
	best := 0.0
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			if v := IoU(boxes[i], boxes[j]); v > best {
				best = v
			}
		}
	}
	return best
}

// trackedDistance finds the boxes with the given track ids
func trackedDistance(boxes []model.BoundingBox, idA, idB int) (float64, bool) {
	var a, b *model.BoundingBox
	for i := range boxes {
		if boxes[i].TrackID == nil {
			continue
		}
		switch *boxes[i].TrackID {
		case idA:
			a = &boxes[i]
		case idB:
			b = &boxes[i]
		}
	}
	if a == nil || b == nil {
		return 0, false
	}
	return normalizedDistance(*a, *b), true
}

func allTracked(boxes []model.BoundingBox) bool {
	for _, b := range boxes {
		if b.TrackID == nil {
			return false
		}
	}
	return len(boxes) > 0
}
