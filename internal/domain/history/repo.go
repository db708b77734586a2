package history

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists clinical history records and their sub-collections.
// Not-found conditions are reported with the package sentinel errors.
type Repository interface {
	Create(ctx context.Context, h *ClinicalHistory) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalHistory, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalHistory, error)
	List(ctx context.Context, limit, offset int) ([]*ClinicalHistory, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) error

	AddCondition(ctx context.Context, c *Condition) error
	UpdateCondition(ctx context.Context, c *Condition) error
	RemoveCondition(ctx context.Context, historyID, conditionID uuid.UUID) error

	AddTreatment(ctx context.Context, t *Treatment) error
	UpdateTreatment(ctx context.Context, t *Treatment) error
	RemoveTreatment(ctx context.Context, historyID, treatmentID uuid.UUID) error

	AddAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, historyID, attachmentID uuid.UUID) (*Attachment, error)
	RemoveAttachment(ctx context.Context, historyID, attachmentID uuid.UUID) error

	// Allergy membership is a set operation: adding an existing entry and
	// removing an absent one are both no-ops.
	AddAllergy(ctx context.Context, historyID uuid.UUID, allergy string) error
	RemoveAllergy(ctx context.Context, historyID uuid.UUID, allergy string) error
}
