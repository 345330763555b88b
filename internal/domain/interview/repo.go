package interview

import (
	"context"

	"github.com/google/uuid"
)

type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	// ListByEncounter returns every assignment ever created for the
	// encounter, ordered by creation time ascending.
	ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Assignment, error)
	// UpdateAnswers persists the answers map, scoring fields, and start
	// timestamp of an assignment.
	UpdateAnswers(ctx context.Context, a *Assignment) error
	UpdateStatus(ctx context.Context, a *Assignment) error
}

type LockEventRepository interface {
	// Create appends a lock event. Events are never mutated or deleted.
	Create(ctx context.Context, ev *LockEvent) error
	// ListByAssignment returns events newest first.
	ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*LockEvent, error)
	// Latest returns the most recent event, or nil when none exist.
	Latest(ctx context.Context, assignmentID uuid.UUID) (*LockEvent, error)
}
