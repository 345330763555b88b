package interview

import (
	"time"

	"github.com/google/uuid"
)

// ModuleType identifies one of the six interview module variants. The type of
// an assignment is immutable after creation.
type ModuleType string

const (
	ModuleIntro           ModuleType = "intro"
	ModuleGuidedInterview ModuleType = "guided_interview"
	ModuleStabilityPlan   ModuleType = "stability_plan"
	ModuleComfortSkills   ModuleType = "comfort_and_skills"
	ModuleLethalMeans     ModuleType = "lethal_means"
	ModuleOutro           ModuleType = "outro"
)

// explicitPriority fixes the order in which callers' requested modules are
// processed, independent of request order. Only these three types may be
// requested directly; the rest are injected.
var explicitPriority = []ModuleType{ModuleGuidedInterview, ModuleStabilityPlan, ModuleComfortSkills}

// modulePriority orders the full set for catalog flattening and answer
// iteration: intro first, outro last, explicit modules in between.
var modulePriority = map[ModuleType]int{
	ModuleIntro:           0,
	ModuleGuidedInterview: 1,
	ModuleStabilityPlan:   2,
	ModuleComfortSkills:   3,
	ModuleLethalMeans:     4,
	ModuleOutro:           5,
}

// IsExplicit reports whether t may be requested directly by a caller.
func (t ModuleType) IsExplicit() bool {
	for _, e := range explicitPriority {
		if t == e {
			return true
		}
	}
	return false
}

// Valid reports whether t names a known module type.
func (t ModuleType) Valid() bool {
	_, ok := modulePriority[t]
	return ok
}

// Status is the derived progress state of a module assignment. COMPLETED and
// UPDATED are re-enterable.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusUpdated    Status = "UPDATED"
)

// Assignment maps to the module_assignment table: one instantiation of a
// module variant for one encounter. Answers is a sparse answer-key -> value
// map stored as jsonb. The scoring fields are populated for guided-interview
// assignments only. Locked is derived from the latest lock event and never
// stored on the row itself.
type Assignment struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	EncounterID     uuid.UUID              `db:"encounter_id" json:"encounter_id"`
	Type            ModuleType             `db:"module_type" json:"module_type"`
	Answers         map[string]interface{} `db:"answers" json:"answers"`
	Status          Status                 `db:"status" json:"status"`
	StatusChangedAt time.Time              `db:"status_changed_at" json:"status_changed_at"`
	StartedAt       *time.Time             `db:"started_at" json:"started_at,omitempty"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`

	Score             *int    `db:"score" json:"score,omitempty"`
	Risk              *string `db:"risk" json:"risk,omitempty"`
	SuicideIndexScore *int    `db:"suicide_index_score" json:"suicide_index_score,omitempty"`
	SuicideIndexLabel *string `db:"suicide_index_label" json:"suicide_index_label,omitempty"`
	CurrentAttempt    *string `db:"current_attempt" json:"current_attempt,omitempty"`
	PlanAndIntent     *string `db:"plan_and_intent" json:"plan_and_intent,omitempty"`

	Locked bool `db:"-" json:"locked"`
}

// LockEvent maps to the assignment_lock_event table. Events are append-only:
// the effective lock state of an assignment is the Locked value of its most
// recent event, unlocked when no events exist.
type LockEvent struct {
	ID           uuid.UUID `db:"id" json:"id"`
	AssignmentID uuid.UUID `db:"assignment_id" json:"assignment_id"`
	Locked       bool      `db:"locked" json:"locked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// newAssignment builds a fresh assignment row bound to an encounter. The
// assignment manager only constructs assignments through here.
func newAssignment(encounterID uuid.UUID, t ModuleType) *Assignment {
	now := time.Now().UTC()
	return &Assignment{
		EncounterID:     encounterID,
		Type:            t,
		Answers:         make(map[string]interface{}),
		Status:          StatusNotStarted,
		StatusChangedAt: now,
		CreatedAt:       now,
	}
}
