package history

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Service enforces record invariants on top of the repository.
type Service struct {
	repo Repository
	now  func() time.Time

	// allowPastDates relaxes the treatment-date policy: when false, start
	// and end dates must be today or later.
	allowPastDates bool
}

func NewService(repo Repository, allowPastTreatmentDates bool) *Service {
	return &Service{
		repo:           repo,
		now:            time.Now,
		allowPastDates: allowPastTreatmentDates,
	}
}

// today truncates the clock to a calendar date so comparisons ignore the
// time of day.
func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) Create(ctx context.Context, patientID uuid.UUID) (*ClinicalHistory, error) {
	if patientID == uuid.Nil {
		return nil, invalid("Patient ID is required")
	}
	h := &ClinicalHistory{PatientID: patientID}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	h.Conditions = []Condition{}
	h.Treatments = []Treatment{}
	h.Attachments = []Attachment{}
	return h, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ClinicalHistory, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalHistory, error) {
	return s.repo.GetByPatient(ctx, patientID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*ClinicalHistory, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) DeleteByPatient(ctx context.Context, patientID uuid.UUID) error {
	return s.repo.DeleteByPatient(ctx, patientID)
}

// -- Conditions --

func (s *Service) validateCondition(c *Condition) error {
	if c.Name == "" {
		return invalid("Condition name is required")
	}
	if c.Details == "" {
		return invalid("Condition details are required")
	}
	today := s.today()
	since := dateOnly(c.Since)
	if since.After(today) {
		return invalid("Condition onset date cannot be in the future")
	}
	if c.Until != nil {
		until := dateOnly(*c.Until)
		if until.Before(since) || until.After(today) {
			return invalid("Condition until date must lie between the onset date and today")
		}
	}
	return nil
}

func (s *Service) AddCondition(ctx context.Context, historyID uuid.UUID, c *Condition) (*ClinicalHistory, error) {
	c.HistoryID = historyID
	if err := s.validateCondition(c); err != nil {
		return nil, err
	}
	if err := s.repo.AddCondition(ctx, c); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

func (s *Service) UpdateCondition(ctx context.Context, historyID, conditionID uuid.UUID, c *Condition) (*ClinicalHistory, error) {
	c.ID = conditionID
	c.HistoryID = historyID
	if err := s.validateCondition(c); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCondition(ctx, c); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

func (s *Service) RemoveCondition(ctx context.Context, historyID, conditionID uuid.UUID) (*ClinicalHistory, error) {
	if err := s.repo.RemoveCondition(ctx, historyID, conditionID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

// -- Treatments --

func (s *Service) validateTreatment(t *Treatment) error {
	if t.Name == "" {
		return invalid("Treatment name is required")
	}
	if t.Instructions == "" {
		return invalid("Treatment instructions are required")
	}
	start := dateOnly(t.StartDate)
	end := dateOnly(t.EndDate)
	if end.Before(start) {
		return invalid("Treatment end date must not be before start date")
	}
	if !s.allowPastDates {
		today := s.today()
		if start.Before(today) || end.Before(today) {
			return invalid("Treatment dates must be today or in the future")
		}
	}
	return nil
}

func (s *Service) AddTreatment(ctx context.Context, historyID uuid.UUID, t *Treatment) (*ClinicalHistory, error) {
	t.HistoryID = historyID
	if err := s.validateTreatment(t); err != nil {
		return nil, err
	}
	if err := s.repo.AddTreatment(ctx, t); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

func (s *Service) UpdateTreatment(ctx context.Context, historyID, treatmentID uuid.UUID, t *Treatment) (*ClinicalHistory, error) {
	t.ID = treatmentID
	t.HistoryID = historyID
	if err := s.validateTreatment(t); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTreatment(ctx, t); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

func (s *Service) RemoveTreatment(ctx context.Context, historyID, treatmentID uuid.UUID) (*ClinicalHistory, error) {
	if err := s.repo.RemoveTreatment(ctx, historyID, treatmentID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

// -- Attachments --

func (s *Service) AddAttachment(ctx context.Context, historyID uuid.UUID, a *Attachment) (*ClinicalHistory, error) {
	a.HistoryID = historyID
	if a.Kind != AttachmentImage && a.Kind != AttachmentAnalytic {
		return nil, invalid("Attachment kind must be image or analytic")
	}
	if a.Name == "" {
		return nil, invalid("Attachment name is required")
	}
	if u, err := url.Parse(a.URL); err != nil || u.Path == "" {
		return nil, invalid("Attachment URL is not valid")
	}
	if err := s.repo.AddAttachment(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

func (s *Service) GetAttachment(ctx context.Context, historyID, attachmentID uuid.UUID) (*Attachment, error) {
	return s.repo.GetAttachment(ctx, historyID, attachmentID)
}

func (s *Service) RemoveAttachment(ctx context.Context, historyID, attachmentID uuid.UUID) (*ClinicalHistory, error) {
	if err := s.repo.RemoveAttachment(ctx, historyID, attachmentID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

// -- Allergies --

func (s *Service) AddAllergy(ctx context.Context, historyID uuid.UUID, allergy string) (*ClinicalHistory, error) {
	if allergy == "" {
		return nil, invalid("Allergy is required")
	}
	if err := s.repo.AddAllergy(ctx, historyID, allergy); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}

func (s *Service) RemoveAllergy(ctx context.Context, historyID uuid.UUID, allergy string) (*ClinicalHistory, error) {
	if allergy == "" {
		return nil, invalid("Allergy is required")
	}
	if err := s.repo.RemoveAllergy(ctx, historyID, allergy); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, historyID)
}
