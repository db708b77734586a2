package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinical-history/internal/domain/history"
	"github.com/ehr/clinical-history/internal/platform/upstream"
)

// Failure messages surfaced to API clients when an upstream resolution
// fails.
const (
	msgIdentityUnreachable = "Failed to fetch patient data. Service is unreachable."
	msgActivityUnreachable = "Failed to fetch appointment data. Service is unreachable."
	msgBreakerOpen         = "Service temporarily unavailable. Please try again later."
)

// UpstreamFailure aborts report generation with a client-facing message.
type UpstreamFailure struct {
	Message string
}

func (e *UpstreamFailure) Error() string { return e.Message }

// RecordLoader loads the clinical history record the report is built from.
type RecordLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*history.ClinicalHistory, error)
}

// IdentityResolver resolves patient demographics, cache-aside.
type IdentityResolver interface {
	Resolve(ctx context.Context, patientID, token string) (*upstream.IdentityData, error)
}

// Service orchestrates report generation: load the record, resolve both
// upstream inputs, assemble, render. Nothing is rendered until both
// resolutions have succeeded.
type Service struct {
	records  RecordLoader
	identity IdentityResolver
	activity upstream.ActivityFetcher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(records RecordLoader, identity IdentityResolver, activity upstream.ActivityFetcher, logger zerolog.Logger) *Service {
	return &Service{
		records:  records,
		identity: identity,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate produces the PDF for one record. Record lookup failures pass
// through unchanged (the handler maps history.ErrNotFound to 404); upstream
// failures come back as *UpstreamFailure.
func (s *Service) Generate(ctx context.Context, recordID uuid.UUID, token string) ([]byte, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	patientID := record.PatientID.String()

	identity, err := s.identity.Resolve(ctx, patientID, token)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("identity resolution failed")
		return nil, &UpstreamFailure{Message: failureMessage(err, msgIdentityUnreachable)}
	}

	activity, err := s.activity.FetchActivity(ctx, patientID, token)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("activity fetch failed")
		return nil, &UpstreamFailure{Message: failureMessage(err, msgActivityUnreachable)}
	}

	doc := Assemble(record, identity, activity, s.now())
	return RenderPDF(doc)
}

// failureMessage picks the client-facing message for an upstream error: the
// upstream's own message for a non-2xx response, a fixed line for
// unreachable services, and the retry hint while a breaker is open.
func failureMessage(err error, unreachableMsg string) string {
	var upErr *upstream.Error
	switch {
	case errors.Is(err, upstream.ErrBreakerOpen):
		return msgBreakerOpen
	case errors.As(err, &upErr):
		return upErr.Message
	case errors.Is(err, upstream.ErrUnreachable):
		return unreachableMsg
	default:
		return err.Error()
	}
}
