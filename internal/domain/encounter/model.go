package encounter

import (
	"time"

	"github.com/google/uuid"
)

// Encounter maps to the encounter table. It is the aggregate root of the
// interview workflow: one care episode for one patient. An encounter is never
// deleted, only superseded by a newer one for the same patient.
type Encounter struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	CurrentSectionUID *string    `db:"current_section_uid" json:"current_section_uid,omitempty"`
	SectionChangedAt  *time.Time `db:"section_changed_at" json:"section_changed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
