package scene

import (
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// Signal is the per-frame motion evidence the state machine consumes
type Signal struct {
	FrameNumber int
	Timestamp   float64
	Closing     float64 // Decrease of the closest-pair distance per second; positive = approaching
	Overlap     float64 // Max vehicle IoU, or fraction of vehicles merged since the previous frame
	Motion      float64 // |relative velocity| of the closest pair
	Vehicles    int
}

type collisionState int

const (
	stateIdle collisionState = iota
	stateApproaching
	stateImpact
	stateDispersing
)

// CollisionDetector runs Idle -> Approaching -> Impact -> Dispersing -> Idle
// over a clip and reports the first impact window
type CollisionDetector struct {
	cfg     model.CollisionConfig
	vehicle map[string]bool
}

// NewCollisionDetector creates a detector that treats the default vehicle labels as vehicles
func NewCollisionDetector(cfg model.CollisionConfig) *CollisionDetector {
	d := &CollisionDetector{cfg: cfg}
	return d.WithVehicleLabels(model.DefaultAggregationConfig().ClassAliases[model.SceneClassCars])
}

// WithVehicleLabels replaces the detector labels counted as vehicles
func (d *CollisionDetector) WithVehicleLabels(labels []string) *CollisionDetector {
	d.vehicle = make(map[string]bool, len(labels))
	for _, l := range labels {
		d.vehicle[strings.ToLower(l)] = true
	}
	return d
}

// Run measures frames and detects the collision
func (d *CollisionDetector) Run(frames []model.FrameDetection) model.CollisionEvent {
	return d.Detect(d.Measure(frames))
}

type measuredFrame struct {
	timestamp   float64
	vehicles    int
	distance    float64
	hasDistance bool
	tracked     bool
	trackA      int
	trackB      int
}

// Measure computes closing speed and overlap per frame, in timestamp order.
// Tracked boxes follow the same pair of vehicles across frames; untracked
// boxes fall back to the closest pair of each frame; frames with only counts
// treat two visible vehicles as approaching and a drop in the count as a merge.
// A drop only counts once it has held for DisperseFrames frames, so a vehicle
// briefly hidden from the detector is not an impact.
func (d *CollisionDetector) Measure(frames []model.FrameDetection) []Signal {
	ordered := append([]model.FrameDetection(nil), frames...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	signals := make([]Signal, 0, len(ordered))
	var prev *measuredFrame

	for idx, f := range ordered {
		boxes := d.vehicleBoxes(f)
		cur := &measuredFrame{timestamp: f.Timestamp, vehicles: d.vehicleCount(f, boxes)}
		s := Signal{FrameNumber: f.FrameNumber, Timestamp: f.Timestamp, Vehicles: cur.vehicles}

		switch {
		case len(boxes) >= 2:
			s.Overlap = maxIoU(boxes)
			d.measureDistance(cur, prev, boxes)
			if prev != nil && prev.hasDistance {
				if dt := cur.timestamp - prev.timestamp; dt > 0 {
					s.Closing = (prev.distance - cur.distance) / dt
				}
			}
		case len(boxes) == 0 && cur.vehicles >= 2:
			s.Closing = 1
		}

		if prev != nil && prev.vehicles >= 2 && cur.vehicles < prev.vehicles && d.dropHolds(ordered[idx:], prev.vehicles) {
			merged := float64(prev.vehicles-cur.vehicles) / float64(prev.vehicles)
			s.Overlap = math.Max(s.Overlap, merged)
		}

		s.Overlap = clamp01(s.Overlap)
		s.Motion = math.Abs(s.Closing)
		signals = append(signals, s)
		prev = cur
	}

	return signals
}

// dropHolds reports whether the vehicle count stays below baseline for the
// first DisperseFrames frames
func (d *CollisionDetector) dropHolds(frames []model.FrameDetection, baseline int) bool {
	need := d.cfg.DisperseFrames
	if need < 1 {
		need = 1
	}
	if len(frames) < need {
		return false
	}
	for _, f := range frames[:need] {
		if d.vehicleCount(f, d.vehicleBoxes(f)) >= baseline {
			return false
		}
	}
	return true
}

// measureDistance keeps following the previous frame's tracked pair when
// both vehicles are still visible, else picks the closest pair
func (d *CollisionDetector) measureDistance(cur, prev *measuredFrame, boxes []model.BoundingBox) {
	if prev != nil && prev.tracked {
		if dist, ok := trackedDistance(boxes, prev.trackA, prev.trackB); ok {
			cur.distance, cur.hasDistance = dist, true
			cur.tracked, cur.trackA, cur.trackB = true, prev.trackA, prev.trackB
			return
		}
	}

	pair, ok := closestPair(boxes)
	if !ok {
		return
	}
	cur.distance, cur.hasDistance = pair.distance, true
	if allTracked([]model.BoundingBox{pair.a, pair.b}) {
		cur.tracked, cur.trackA, cur.trackB = true, *pair.a.TrackID, *pair.b.TrackID
	}
}

// Detect runs the state machine over signals. Only the first impact window
// becomes the event; its confidence is the peak overlap and its motion the
// peak closing speed from the approach through the impact window.
func (d *CollisionDetector) Detect(signals []Signal) model.CollisionEvent {
	cfg := d.cfg
	state := stateIdle
	event := model.NoCollision()
	captured, inWindow := false, false

	approachRun, settleRun, belowRun := 0, 0, 0
	approachMotion := 0.0

	for _, s := range signals {
		quiet := math.Abs(s.Closing) < cfg.SettleThreshold && s.Overlap < cfg.OverlapThreshold

		switch state {
		case stateIdle:
			if s.Closing > cfg.ClosingThreshold {
				approachRun++
				approachMotion = math.Max(approachMotion, s.Motion)
			} else {
				approachRun, approachMotion = 0, 0
			}
			if approachRun >= cfg.ApproachFrames {
				state, settleRun = stateApproaching, 0
			}

		case stateApproaching:
			approachMotion = math.Max(approachMotion, s.Motion)
			if s.Overlap > cfg.OverlapThreshold {
				state, belowRun = stateImpact, 0
				if !captured {
					captured, inWindow = true, true
					event = model.CollisionEvent{
						Detected:        true,
						Timestamp:       model.FloatPtr(s.Timestamp),
						MotionMagnitude: approachMotion,
					}
				}
				if inWindow {
					recordImpact(&event, s)
				}
				continue
			}
			if quiet {
				settleRun++
				if settleRun >= cfg.SettleFrames {
					state, approachRun, approachMotion = stateIdle, 0, 0
				}
			} else {
				settleRun = 0
			}

		case stateImpact:
			if s.Overlap > cfg.OverlapThreshold {
				belowRun = 0
				if inWindow {
					recordImpact(&event, s)
				}
				continue
			}
			if s.Overlap < cfg.OverlapThreshold {
				belowRun++
			} else {
				belowRun = 0
			}
			if belowRun >= cfg.DisperseFrames {
				state, settleRun = stateDispersing, 0
			}

		case stateDispersing:
			if s.Overlap > cfg.OverlapThreshold {
				state, belowRun = stateImpact, 0
				if inWindow {
					recordImpact(&event, s)
				}
				continue
			}
			if quiet {
				settleRun++
				if settleRun >= cfg.SettleFrames {
					state, inWindow = stateIdle, false
					approachRun, approachMotion = 0, 0
				}
			} else {
				settleRun = 0
			}
		}
	}

	return event
}

func recordImpact(event *model.CollisionEvent, s Signal) {
	event.Confidence = clamp01(math.Max(event.Confidence, s.Overlap))
	event.MotionMagnitude = math.Max(event.MotionMagnitude, s.Motion)
	event.EndTimestamp = model.FloatPtr(s.Timestamp)
	event.ImpactFrames++
}

func (d *CollisionDetector) vehicleBoxes(f model.FrameDetection) []model.BoundingBox {
	var boxes []model.BoundingBox
	for _, b := range f.Boxes {
		if d.vehicle[strings.ToLower(b.Class)] {
			boxes = append(boxes, b)
		}
	}
	return boxes
}

func (d *CollisionDetector) vehicleCount(f model.FrameDetection, boxes []model.BoundingBox) int {
	if len(f.Counts) == 0 {
		return len(boxes)
	}
	n := 0
	for label, c := range f.Counts {
		if c > 0 && d.vehicle[strings.ToLower(label)] {
			n += c
		}
	}
	return n
}
