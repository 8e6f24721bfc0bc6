package validate

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/evidencecheck/internal/model"
)

func TestFrames_DropsBadTimestamps(t *testing.T) {
	frames := []model.FrameDetection{
		{FrameNumber: 0, Timestamp: 0},
		{FrameNumber: 1, Timestamp: math.NaN()},
		{FrameNumber: 2, Timestamp: -1},
		{FrameNumber: 3, Timestamp: 1.0},
		{FrameNumber: 4, Timestamp: 0.5},
		{FrameNumber: 5, Timestamp: 1.0},
		{FrameNumber: 6, Timestamp: math.Inf(1)},
	}

	kept, issues := Frames(frames)

	var numbers []int
	for _, f := range kept {
		numbers = append(numbers, f.FrameNumber)
	}
	if diff := cmp.Diff([]int{0, 3, 5}, numbers); diff != "" {
		t.Errorf("Kept frames mismatch (-want +got):\n%s", diff)
	}

	if len(issues) != 4 {
		t.Fatalf("Expected 4 issues, got %d: %v", len(issues), issues)
	}
	for _, issue := range issues {
		if !issue.Dropped {
			t.Errorf("Expected dropped issue, got %v", issue)
		}
	}
}

func TestFrames_ClampsValues(t *testing.T) {
	frames := []model.FrameDetection{{
		FrameNumber:       7,
		Timestamp:         2,
		Counts:            map[string]int{"person": -2, "car": 2},
		ClassConfidences:  map[string]float64{"person": 1.4, "car": math.NaN()},
		WeaponConfidences: []float64{-0.1, 0.6},
		Boxes: []model.BoundingBox{
			{Class: "car", X1: 10, Y1: 10, X2: 0, Y2: 0, Confidence: 0.8},
			{Class: "car", X1: math.NaN(), Y1: 0, X2: 1, Y2: 1},
		},
	}}

	kept, issues := Frames(frames)
	if len(kept) != 1 {
		t.Fatalf("Expected the frame to be kept, got %d frames", len(kept))
	}

	want := model.FrameDetection{
		FrameNumber:       7,
		Timestamp:         2,
		Counts:            map[string]int{"person": 0, "car": 2},
		ClassConfidences:  map[string]float64{"person": 1, "car": 0},
		WeaponConfidences: []float64{0, 0.6},
		Boxes:             []model.BoundingBox{{Class: "car", X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.8}},
	}
	if diff := cmp.Diff(want, kept[0]); diff != "" {
		t.Errorf("Sanitised frame mismatch (-want +got):\n%s", diff)
	}

	// negative count, two confidences, one weapon confidence, one box
	if len(issues) != 5 {
		t.Errorf("Expected 5 issues, got %d: %v", len(issues), issues)
	}
	for _, issue := range issues {
		if issue.Dropped || issue.FrameNumber != 7 {
			t.Errorf("Unexpected issue %v", issue)
		}
	}
}

func TestFrames_DoesNotModifyInput(t *testing.T) {
	frames := []model.FrameDetection{{Timestamp: 0, Counts: map[string]int{"car": -1}}}

	_, _ = Frames(frames)

	if frames[0].Counts["car"] != -1 {
		t.Errorf("Expected input untouched, got %d", frames[0].Counts["car"])
	}
}

func TestFrames_Empty(t *testing.T) {
	kept, issues := Frames(nil)
	if len(kept) != 0 || len(issues) != 0 {
		t.Errorf("Expected nothing for nil input, got %v / %v", kept, issues)
	}
}

func TestIssue_String(t *testing.T) {
	issue := Issue{FrameNumber: 3, Dropped: true, Reason: "negative timestamp -1.000"}
	if got := issue.String(); got != "frame 3 dropped: negative timestamp -1.000" {
		t.Errorf("Unexpected issue string: %s", got)
	}
}
