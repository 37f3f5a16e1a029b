package progress

import (
	"maps"
	"slices"
	"time"

	"featureflow/internal/gate"
	"featureflow/internal/stage"
)

// FeatureStatus is the outcome of one feature within a run.
type FeatureStatus string

const (
	StatusSuccess    FeatureStatus = "success"
	StatusFailure    FeatureStatus = "failure"
	StatusSkipped    FeatureStatus = "skipped"
	StatusInProgress FeatureStatus = "in_progress"
)

// Terminal reports whether the status is final for the run.
func (s FeatureStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusSkipped
}

// OverallStatus summarizes a whole run.
type OverallStatus string

const (
	OverallSuccess        OverallStatus = "success"
	OverallPartialFailure OverallStatus = "partial_failure"
	OverallFailure        OverallStatus = "failure"
	OverallInProgress     OverallStatus = "in_progress"
)

// Error kinds recorded on failed results.
const (
	ErrorKindExecution  = "execution"
	ErrorKindTimeout    = "timeout"
	ErrorKindValidation = "validation"
	ErrorKindState      = "state"
	ErrorKindCancelled  = "cancelled"
)

// RunRequest asks for one operation to be applied across a feature set.
type RunRequest struct {
	OperationID      string        `json:"operation_id"`
	Features         []string      `json:"features"`
	ConcurrencyLimit int           `json:"concurrency_limit"`
	FeatureTimeout   time.Duration `json:"feature_timeout"`
	CreatedAt        time.Time     `json:"created_at"`
}

// FeatureResult is the outcome of the run's operation for one feature.
type FeatureResult struct {
	Feature      string        `json:"feature"`
	Status       FeatureStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Stage        stage.Stage   `json:"stage,omitempty"`
	ArtifactRefs []string      `json:"artifact_refs,omitempty"`
	Issues       []gate.Issue  `json:"issues,omitempty"`
	StartedAt    time.Time     `json:"started_at,omitzero"`
	FinishedAt   time.Time     `json:"finished_at,omitzero"`
}

// RunReport aggregates a RunRequest's per-feature results.
type RunReport struct {
	ID         string                   `json:"id"`
	Request    RunRequest               `json:"request"`
	Results    map[string]FeatureResult `json:"results"`
	Overall    OverallStatus            `json:"overall"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at,omitzero"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// NewRunReport returns a report with every requested feature in progress.
func NewRunReport(id string, req RunRequest, now time.Time) *RunReport {
	report := &RunReport{
		ID:        id,
		Request:   req,
		Results:   make(map[string]FeatureResult, len(req.Features)),
		Overall:   OverallInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
	for _, name := range req.Features {
		report.Results[name] = FeatureResult{Feature: name, Status: StatusInProgress}
	}
	return report
}

// ComputeOverall derives the run status from its results. Partial failure
// needs at least one success and one failure; a mix of successes and skips
// is a failure.
func (r *RunReport) ComputeOverall() OverallStatus {
	if len(r.Results) == 0 {
		return OverallFailure
	}
	var succeeded, failed int
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailure:
			failed++
		case StatusInProgress:
			return OverallInProgress
		}
	}
	switch {
	case succeeded == len(r.Results):
		return OverallSuccess
	case succeeded > 0 && failed > 0:
		return OverallPartialFailure
	default:
		return OverallFailure
	}
}

// Finished reports whether every feature has a terminal result.
func (r *RunReport) Finished() bool {
	for _, res := range r.Results {
		if !res.Status.Terminal() {
			return false
		}
	}
	return true
}

// Pending returns the features a resume should execute again, in request
// order: in-progress entries, plus failures when includeFailed is set.
func (r *RunReport) Pending(includeFailed bool) []string {
	var out []string
	for _, name := range r.Request.Features {
		res, ok := r.Results[name]
		if !ok {
			out = append(out, name)
			continue
		}
		switch res.Status {
		case StatusInProgress:
			out = append(out, name)
		case StatusFailure:
			if includeFailed {
				out = append(out, name)
			}
		}
	}
	return out
}

// Clone returns a deep copy.
func (r *RunReport) Clone() *RunReport {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Request.Features = slices.Clone(r.Request.Features)
	cp.Results = maps.Clone(r.Results)
	for name, res := range cp.Results {
		res.ArtifactRefs = slices.Clone(res.ArtifactRefs)
		res.Issues = slices.Clone(res.Issues)
		cp.Results[name] = res
	}
	return &cp
}
