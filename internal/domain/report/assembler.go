// Package report builds the clinical history PDF report. Assembly is a pure
// function over already-fetched inputs; fetching and rendering live in the
// service and the PDF writer respectively.
package report

import (
	"fmt"
	"time"

	"github.com/ehr/clinical-history/internal/domain/history"
	"github.com/ehr/clinical-history/internal/platform/upstream"
)

// Placeholder lines rendered when a collection is empty. Sections are never
// omitted.
const (
	NoAppointments = "No appointments available"
	NoConditions   = "No medical conditions recorded"
	NoTreatments   = "No treatments recorded"
	NoAllergies    = "No allergies recorded"
)

const (
	dateLayout     = "02-01-2006"
	dateTimeLayout = "02-01-2006 15:04"
	birthLayout    = "02/01/2006"
)

// Document is the assembled report, ready for rendering.
type Document struct {
	Title       string
	Sections    []Section
	GeneratedAt time.Time
}

// Section is one titled report block. Entries are groups of lines separated
// by a dashed rule when rendered; an empty Entries slice means the section
// renders its placeholder.
type Section struct {
	Title       string
	Entries     [][]string
	Placeholder string
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatDateTime(t time.Time) string {
	return t.Format(dateTimeLayout)
}

// formatBirthdate renders the upstream's ISO date in day/month/year form,
// passing unparseable values through untouched.
func formatBirthdate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format(birthLayout)
}

// Assemble deterministically produces the report document. Section order is
// invariant: identification, appointments, conditions, treatments,
// allergies.
func Assemble(record *history.ClinicalHistory, identity *upstream.IdentityData, activity []upstream.ActivityRecord, now time.Time) *Document {
	doc := &Document{
		Title:       "Clinical History Report",
		GeneratedAt: now,
	}

	doc.Sections = append(doc.Sections, Section{
		Title: "Patient Identification",
		Entries: [][]string{{
			fmt.Sprintf("Name: %s %s", identity.Name, identity.Surname),
			fmt.Sprintf("Birthdate: %s", formatBirthdate(identity.Birthdate)),
			fmt.Sprintf("National ID: %s", identity.DNI),
			fmt.Sprintf("City: %s", identity.City),
		}},
	})

	appointments := Section{Title: "Appointments", Placeholder: NoAppointments}
	for _, a := range activity {
		appointments.Entries = append(appointments.Entries, []string{
			fmt.Sprintf("Category: %s", a.Category),
			fmt.Sprintf("Type: %s", a.Subtype),
			fmt.Sprintf("Date: %s", formatDateTime(a.Date)),
		})
	}
	doc.Sections = append(doc.Sections, appointments)

	conditions := Section{Title: "Medical Conditions", Placeholder: NoConditions}
	for _, c := range record.Conditions {
		entry := []string{
			fmt.Sprintf("Condition: %s", c.Name),
			fmt.Sprintf("Details: %s", c.Details),
			fmt.Sprintf("Since: %s", formatDate(c.Since)),
		}
		if c.Until != nil {
			entry = append(entry, fmt.Sprintf("Until: %s", formatDate(*c.Until)))
		}
		conditions.Entries = append(conditions.Entries, entry)
	}
	doc.Sections = append(doc.Sections, conditions)

	treatments := Section{Title: "Treatments", Placeholder: NoTreatments}
	for _, t := range record.Treatments {
		treatments.Entries = append(treatments.Entries, []string{
			fmt.Sprintf("Treatment: %s", t.Name),
			fmt.Sprintf("From: %s  To: %s", formatDate(t.StartDate), formatDate(t.EndDate)),
			fmt.Sprintf("Instructions: %s", t.Instructions),
		})
	}
	doc.Sections = append(doc.Sections, treatments)

	allergies := Section{Title: "Allergies", Placeholder: NoAllergies}
	for i, a := range record.Allergies {
		allergies.Entries = append(allergies.Entries, []string{
			fmt.Sprintf("%d. %s", i+1, a),
		})
	}
	doc.Sections = append(doc.Sections, allergies)

	return doc
}
