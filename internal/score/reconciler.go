package score

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// VideoEvidence bundles everything the video side knows about the incident
type VideoEvidence struct {
	Scene     model.SceneSummary
	Collision model.CollisionEvent
	Severity  model.SeverityAssessment
}

// rule compares one claim to the video evidence
type rule func(r *Reconciler, claim model.Claim, video VideoEvidence) model.ClaimResult

// Reconciler scores how far a narrative agrees with the video
type Reconciler struct {
	policy model.ScoringPolicy
	rules  map[model.ClaimKind]rule
}

// NewReconciler creates a reconciler with the given deduction policy
func NewReconciler(policy model.ScoringPolicy) *Reconciler {
	return &Reconciler{
		policy: policy,
		rules: map[model.ClaimKind]rule{
			model.ClaimPeople:   countRule(func(s model.SceneSummary) *int { return s.People }),
			model.ClaimCars:     countRule(func(s model.SceneSummary) *int { return s.Cars }),
			model.ClaimWeapon:   (*Reconciler).weaponRule,
			model.ClaimTime:     (*Reconciler).timeRule,
			model.ClaimSeverity: (*Reconciler).severityRule,
		},
	}
}

// HasRule reports whether kind can be reconciled
func (r *Reconciler) HasRule(kind model.ClaimKind) bool {
	_, ok := r.rules[kind]
	return ok
}

// Reconcile compares every known claim to the video and totals the deductions.
// Unknown claims are skipped; claims the video cannot speak to are reported
// as unknown and cost nothing.
func (r *Reconciler) Reconcile(claims model.ClaimSet, scene model.SceneSummary, collision model.CollisionEvent, severity model.SeverityAssessment) model.ConsistencyReport {
	video := VideoEvidence{Scene: scene, Collision: collision, Severity: severity}
	report := model.ConsistencyReport{Details: []model.ClaimResult{}}

	total := 0
	for _, claim := range claims.Claims() {
		apply, ok := r.rules[claim.Kind]
		if !ok {
			continue
		}
		result := apply(r, claim, video)
		total += result.Deduction
		report.Details = append(report.Details, result)
	}

	report.OverallScore = clampScore(100 + total)
	return report
}

// countRule builds the people/cars rule: exact, off by one, off by more
func countRule(detected func(model.SceneSummary) *int) rule {
	return func(r *Reconciler, claim model.Claim, video VideoEvidence) model.ClaimResult {
		result := model.ClaimResult{ClaimType: claim.Kind, ClaimValue: claim.Display()}

		got := detected(video.Scene)
		if got == nil {
			result.DetectedValue = "Unknown"
			result.Result = model.ResultUnknown
			result.Note = fmt.Sprintf("Text says %d, video count unavailable", claim.Count)
			return result
		}

		result.DetectedValue = fmt.Sprint(*got)
		diff := claim.Count - *got
		if diff < 0 {
			diff = -diff
		}

		switch {
		case diff == 0:
			result.Result = model.ResultSupported
			result.Note = fmt.Sprintf("Text and video agree on %d", claim.Count)
		case diff == 1:
			result.Result = model.ResultPartial
			result.Deduction = r.policy.CountOffByOne
			result.Note = fmt.Sprintf("Text says %d, video shows %d (off by 1)", claim.Count, *got)
		default:
			result.Result = model.ResultUnsupported
			result.Deduction = r.policy.CountOffByMore
			result.Note = fmt.Sprintf("Text says %d, video shows %d (off by %d)", claim.Count, *got, diff)
		}
		return result
	}
}

func (r *Reconciler) weaponRule(claim model.Claim, video VideoEvidence) model.ClaimResult {
	result := model.ClaimResult{ClaimType: claim.Kind, ClaimValue: claim.Display()}

	got := video.Scene.WeaponPresent
	if got == nil {
		result.DetectedValue = "Unknown"
		result.Result = model.ResultUnknown
		result.Note = "Video weapon detection inconclusive"
		return result
	}

	result.DetectedValue = presence(*got)
	if claim.Present == *got {
		result.Result = model.ResultSupported
		result.Note = fmt.Sprintf("Text and video agree: weapon %s", strings.ToLower(presence(*got)))
		return result
	}

	result.Result = model.ResultContradicted
	result.Deduction = r.policy.WeaponMismatch
	result.Note = fmt.Sprintf("Text says weapon %s, video shows weapon %s",
		strings.ToLower(presence(claim.Present)), strings.ToLower(presence(*got)))
	return result
}

// timeRule places the collision on the wall clock via the clip start time
func (r *Reconciler) timeRule(claim model.Claim, video VideoEvidence) model.ClaimResult {
	result := model.ClaimResult{ClaimType: claim.Kind, ClaimValue: claim.Display()}

	if !video.Collision.Detected || video.Collision.Timestamp == nil {
		result.DetectedValue = "Unknown"
		result.Result = model.ResultUnknown
		result.Note = "No collision detected in video to time"
		return result
	}

	impact := r.policy.ClipStartSecondsOfDay + *video.Collision.Timestamp
	result.DetectedValue = model.FormatClock(int(math.Round(impact)))

	diff := math.Abs(float64(claim.Seconds) - impact)
	if diff <= r.policy.TimeToleranceSeconds {
		result.Result = model.ResultSupported
		result.Note = fmt.Sprintf("Impact within %.0fs of reported time (off by %.1fs)", r.policy.TimeToleranceSeconds, diff)
		return result
	}

	result.Result = model.ResultContradicted
	result.Note = fmt.Sprintf("Reported %s, video impact at %s (off by %.1fs)", claim.Display(), result.DetectedValue, diff)
	if r.policy.ScoreTime {
		result.Deduction = r.policy.TimeMismatch
	}
	return result
}

func (r *Reconciler) severityRule(claim model.Claim, video VideoEvidence) model.ClaimResult {
	result := model.ClaimResult{ClaimType: claim.Kind, ClaimValue: claim.Display()}

	got := video.Severity.Severity
	if got == model.SeverityUnknown {
		result.DetectedValue = "Unknown"
		result.Result = model.ResultUnknown
		result.Note = "No collision severity derivable from video"
		return result
	}

	result.DetectedValue = got.String()
	if claim.Severity == got {
		result.Result = model.ResultSupported
		result.Note = fmt.Sprintf("Text and video agree: %s (confidence %.2f)", got, video.Severity.Confidence)
		return result
	}

	bands := int(claim.Severity) - int(got)
	if bands < 0 {
		bands = -bands
	}
	result.Result = model.ResultContradicted
	result.Note = fmt.Sprintf("Text says %s, video suggests %s (%d band(s) apart)", claim.Severity, got, bands)
	if r.policy.ScoreSeverity {
		result.Deduction = r.policy.SeverityMismatch
	}
	return result
}

func presence(present bool) string {
	if present {
		return "Present"
	}
	return "Absent"
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
