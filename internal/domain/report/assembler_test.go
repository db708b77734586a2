package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinical-history/internal/domain/history"
	"github.com/ehr/clinical-history/internal/platform/upstream"
)

var testIdentity = &upstream.IdentityData{
	Name:      "Ann",
	Surname:   "Lee",
	Birthdate: "1990-01-01",
	DNI:       "X1",
	City:      "Metropolis",
}

func emptyRecord() *history.ClinicalHistory {
	return &history.ClinicalHistory{
		ID:        uuid.New(),
		PatientID: uuid.New(),
	}
}

func sectionTitles(doc *Document) []string {
	titles := make([]string, len(doc.Sections))
	for i, s := range doc.Sections {
		titles[i] = s.Title
	}
	return titles
}

func TestAssemble_SectionOrderIsInvariant(t *testing.T) {
	want := []string{"Patient Identification", "Appointments", "Medical Conditions", "Treatments", "Allergies"}

	until := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	full := &history.ClinicalHistory{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Conditions: []history.Condition{
			{Name: "Asthma", Details: "Mild", Since: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Until: &until},
		},
		Treatments: []history.Treatment{
			{Name: "Inhaler", StartDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), Instructions: "As needed"},
		},
		Allergies: []string{"pollen", "dust"},
	}
	activity := []upstream.ActivityRecord{
		{Category: "checkup", Subtype: "general", Date: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
	}

	for _, record := range []*history.ClinicalHistory{emptyRecord(), full} {
		doc := Assemble(record, testIdentity, activity, time.Now())
		got := sectionTitles(doc)
		if len(got) != len(want) {
			t.Fatalf("expected %d sections, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("section %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	}
}

func TestAssemble_PlaceholdersForEmptyCollections(t *testing.T) {
	doc := Assemble(emptyRecord(), testIdentity, nil, time.Now())

	placeholders := map[string]string{
		"Appointments":       NoAppointments,
		"Medical Conditions": NoConditions,
		"Treatments":         NoTreatments,
		"Allergies":          NoAllergies,
	}
	for _, s := range doc.Sections {
		want, ok := placeholders[s.Title]
		if !ok {
			continue
		}
		if len(s.Entries) != 0 {
			t.Errorf("%s: expected no entries, got %d", s.Title, len(s.Entries))
		}
		if s.Placeholder != want {
			t.Errorf("%s: expected placeholder %q, got %q", s.Title, want, s.Placeholder)
		}
	}
}

func TestAssemble_IdentificationFormatting(t *testing.T) {
	doc := Assemble(emptyRecord(), testIdentity, nil, time.Now())

	ident := doc.Sections[0]
	if len(ident.Entries) != 1 {
		t.Fatalf("expected one identification entry, got %d", len(ident.Entries))
	}
	lines := ident.Entries[0]
	if lines[0] != "Name: Ann Lee" {
		t.Errorf("unexpected name line %q", lines[0])
	}
	if lines[1] != "Birthdate: 01/01/1990" {
		t.Errorf("expected day/month/year birthdate, got %q", lines[1])
	}
}

func TestAssemble_AppointmentDateTimeFormat(t *testing.T) {
	activity := []upstream.ActivityRecord{
		{Category: "surgery", Subtype: "elective", Date: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
	}
	doc := Assemble(emptyRecord(), testIdentity, activity, time.Now())

	appts := doc.Sections[1]
	if len(appts.Entries) != 1 {
		t.Fatalf("expected one appointment entry, got %d", len(appts.Entries))
	}
	if got := appts.Entries[0][2]; got != "Date: 01-03-2026 10:30" {
		t.Errorf("unexpected date line %q", got)
	}
}

func TestAssemble_AllergiesAreNumbered(t *testing.T) {
	record := emptyRecord()
	record.Allergies = []string{"penicillin", "latex"}
	doc := Assemble(record, testIdentity, nil, time.Now())

	allergies := doc.Sections[4]
	if len(allergies.Entries) != 2 {
		t.Fatalf("expected 2 allergy entries, got %d", len(allergies.Entries))
	}
	if allergies.Entries[0][0] != "1. penicillin" || allergies.Entries[1][0] != "2. latex" {
		t.Errorf("unexpected numbering: %v", allergies.Entries)
	}
}

func TestAssemble_UnparseableBirthdatePassesThrough(t *testing.T) {
	identity := &upstream.IdentityData{Name: "Ann", Surname: "Lee", Birthdate: "unknown"}
	doc := Assemble(emptyRecord(), identity, nil, time.Now())
	if got := doc.Sections[0].Entries[0][1]; got != "Birthdate: unknown" {
		t.Errorf("unexpected birthdate line %q", got)
	}
}

func TestRenderPDF(t *testing.T) {
	record := emptyRecord()
	record.Allergies = []string{"penicillin"}
	doc := Assemble(record, testIdentity, nil, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	pdf, err := RenderPDF(doc)
	if err != nil {
		t.Fatalf("RenderPDF() error: %v", err)
	}
	if len(pdf) == 0 {
		t.Fatal("expected non-empty pdf")
	}
	if string(pdf[:5]) != "%PDF-" {
		t.Errorf("expected pdf magic, got %q", pdf[:5])
	}
	for _, want := range []string{"Ann Lee", NoAppointments, NoConditions, NoTreatments, "penicillin"} {
		if !bytes.Contains(pdf, []byte(want)) {
			t.Errorf("expected %q in pdf body", want)
		}
	}
}
