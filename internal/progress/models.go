package progress

import (
	"slices"
	"time"

	"featureflow/internal/gate"
	"featureflow/internal/stage"
)

// RecordKind classifies a history entry.
type RecordKind string

const (
	// KindEnter records the feature entering a stage with freshly generated artifacts.
	KindEnter RecordKind = "enter"
	// KindRefine records regenerated artifacts for the stage the feature is already in.
	KindRefine RecordKind = "refine"
	// KindReset records an explicit move back to an earlier stage.
	KindReset RecordKind = "reset"
	// KindBlock records the feature becoming blocked.
	KindBlock RecordKind = "block"
)

// StageRecord is one immutable history entry. A record is superseded when a
// later record lists its Seq in Supersedes; records are never edited.
type StageRecord struct {
	Seq          int          `json:"seq"`
	Stage        stage.Stage  `json:"stage"`
	Kind         RecordKind   `json:"kind"`
	EnteredAt    time.Time    `json:"entered_at"`
	ArtifactRefs []string     `json:"artifact_refs,omitempty"`
	Validation   *gate.Result `json:"validation,omitempty"`
	Supersedes   []int        `json:"supersedes,omitempty"`
	Note         string       `json:"note,omitempty"`
}

// FeatureState is one feature's workflow position and history.
type FeatureState struct {
	Name           string        `json:"name"`
	Stage          stage.Stage   `json:"stage"`
	BlockedFrom    stage.Stage   `json:"blocked_from,omitempty"`
	BlockReason    string        `json:"block_reason,omitempty"`
	History        []StageRecord `json:"history"`
	LastValidation *gate.Result  `json:"last_validation,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	// Revision counts successful saves. Stores reject a save whose Revision
	// does not match the stored one.
	Revision int64 `json:"revision"`
}

// NewFeatureState returns an unsaved feature at NotStarted.
func NewFeatureState(name string, now time.Time) *FeatureState {
	return &FeatureState{
		Name:      name,
		Stage:     stage.NotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Blocked reports whether the feature needs a reset before advancing.
func (f *FeatureState) Blocked() bool {
	return f.Stage == stage.Blocked
}

// Append adds rec to the history, assigning the next sequence number, and
// returns the stored copy.
func (f *FeatureState) Append(rec StageRecord) StageRecord {
	next := 1
	if n := len(f.History); n > 0 {
		next = f.History[n-1].Seq + 1
	}
	rec.Seq = next
	rec.ArtifactRefs = slices.Clone(rec.ArtifactRefs)
	rec.Supersedes = slices.Clone(rec.Supersedes)
	f.History = append(f.History, rec)
	return rec
}

// SupersededSeqs returns the set of record sequence numbers invalidated by
// later records.
func (f *FeatureState) SupersededSeqs() map[int]struct{} {
	out := make(map[int]struct{})
	for _, rec := range f.History {
		for _, seq := range rec.Supersedes {
			out[seq] = struct{}{}
		}
	}
	return out
}

// IsSuperseded reports whether the record with seq has been invalidated.
func (f *FeatureState) IsSuperseded(seq int) bool {
	_, ok := f.SupersededSeqs()[seq]
	return ok
}

// ActiveRecords returns the enter and refine records that have not been
// superseded, oldest first.
func (f *FeatureState) ActiveRecords() []StageRecord {
	superseded := f.SupersededSeqs()
	var out []StageRecord
	for _, rec := range f.History {
		if rec.Kind != KindEnter && rec.Kind != KindRefine {
			continue
		}
		if _, ok := superseded[rec.Seq]; ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ActiveRecord returns the latest active record for s.
func (f *FeatureState) ActiveRecord(s stage.Stage) (StageRecord, bool) {
	active := f.ActiveRecords()
	for i := len(active) - 1; i >= 0; i-- {
		if active[i].Stage == s {
			return active[i], true
		}
	}
	return StageRecord{}, false
}

// ActiveArtifacts returns the artifact references of the latest active record
// for s.
func (f *FeatureState) ActiveArtifacts(s stage.Stage) []string {
	rec, ok := f.ActiveRecord(s)
	if !ok {
		return nil
	}
	return slices.Clone(rec.ArtifactRefs)
}

// PriorArtifacts returns the active artifacts of every stage before s, in
// stage order.
func (f *FeatureState) PriorArtifacts(s stage.Stage) []string {
	var out []string
	for _, st := range stage.GatedStages() {
		if !st.Before(s) {
			break
		}
		out = append(out, f.ActiveArtifacts(st)...)
	}
	return out
}

// Clone returns a deep copy.
func (f *FeatureState) Clone() *FeatureState {
	if f == nil {
		return nil
	}
	cp := *f
	cp.History = make([]StageRecord, len(f.History))
	for i, rec := range f.History {
		rec.ArtifactRefs = slices.Clone(rec.ArtifactRefs)
		rec.Supersedes = slices.Clone(rec.Supersedes)
		rec.Validation = cloneResult(rec.Validation)
		cp.History[i] = rec
	}
	cp.LastValidation = cloneResult(f.LastValidation)
	return &cp
}

func cloneResult(r *gate.Result) *gate.Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Issues = slices.Clone(r.Issues)
	return &cp
}
