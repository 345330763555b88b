package encounter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateEncounter(ctx context.Context, enc *Encounter) error {
	if enc.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	return s.repo.Create(ctx, enc)
}

func (s *Service) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListEncountersByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
