// Package history implements the clinical history record: one document per
// patient carrying conditions, treatments, attachments and allergies.
package history

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("Clinical history not found")
	ErrConditionNotFound = errors.New("Condition not found")
	ErrTreatmentNotFound = errors.New("Treatment not found")
	ErrFileNotFound      = errors.New("File not found")
	ErrDuplicatePatient  = errors.New("Clinical history already exists for patient")
)

// ValidationError marks input the service rejected. The handler maps it to
// 400; anything else unexpected out of the repository is a 500.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(msg string) error {
	return &ValidationError{msg: msg}
}

// Attachment kinds; they mirror the two upload routes.
const (
	AttachmentImage    = "image"
	AttachmentAnalytic = "analytic"
)

// ClinicalHistory maps to the clinical_history table. Sub-collections are
// exclusively owned and cascade-deleted with the record.
type ClinicalHistory struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	PatientID   uuid.UUID    `db:"patient_id" json:"patientId"`
	Conditions  []Condition  `json:"currentConditions"`
	Treatments  []Treatment  `json:"treatments"`
	Attachments []Attachment `json:"files"`
	Allergies   []string     `db:"allergies" json:"allergies"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updatedAt"`
}

// Condition maps to the history_condition table.
type Condition struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	HistoryID uuid.UUID  `db:"history_id" json:"-"`
	Name      string     `db:"name" json:"name"`
	Details   string     `db:"details" json:"details"`
	Since     time.Time  `db:"since" json:"since"`
	Until     *time.Time `db:"until_date" json:"until,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// Treatment maps to the history_treatment table.
type Treatment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	HistoryID    uuid.UUID `db:"history_id" json:"-"`
	Name         string    `db:"name" json:"name"`
	StartDate    time.Time `db:"start_date" json:"startDate"`
	EndDate      time.Time `db:"end_date" json:"endDate"`
	Instructions string    `db:"instructions" json:"instructions"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Attachment maps to the history_attachment table. Name is the blobstore
// object key; OriginalName is the filename the caller uploaded.
type Attachment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	HistoryID    uuid.UUID `db:"history_id" json:"-"`
	Kind         string    `db:"kind" json:"kind"`
	Name         string    `db:"name" json:"name"`
	OriginalName string    `db:"original_name" json:"originalName"`
	URL          string    `db:"url" json:"url"`
	ContentType  string    `db:"content_type" json:"contentType,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
