// Package upstream talks to the patient and appointment services on behalf
// of the report pipeline. It wraps each outbound operation in a circuit
// breaker and layers a read-through cache over the identity lookup.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnreachable marks transport-level failures: the upstream never produced
// an HTTP response (connection refused, DNS failure, timeout).
var ErrUnreachable = errors.New("upstream unreachable")

// Error carries a non-2xx upstream response back to the caller. The message
// is surfaced verbatim to the API client.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// IdentityData is the demographic snapshot returned by the patient service.
type IdentityData struct {
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Birthdate string `json:"birthdate"`
	DNI       string `json:"dni"`
	City      string `json:"city"`
}

// ActivityRecord is one appointment entry returned by the appointment
// service. Activity is never cached; it is always fetched live.
type ActivityRecord struct {
	Category string    `json:"category"`
	Subtype  string    `json:"subtype"`
	Date     time.Time `json:"date"`
}

// IdentityFetcher fetches patient demographics for one patient.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, patientID, token string) (*IdentityData, error)
}

// ActivityFetcher fetches the appointment list for one patient.
type ActivityFetcher interface {
	FetchActivity(ctx context.Context, patientID, token string) ([]ActivityRecord, error)
}

// Gateway performs the raw HTTP calls. The per-call budget is enforced by
// the HTTP client timeout so a hung upstream counts as a breaker failure.
type Gateway struct {
	client             *http.Client
	patientBaseURL     string
	appointmentBaseURL string
}

// NewGateway builds a Gateway against the two upstream base URLs. timeout is
// the per-call budget; a call exceeding it fails with ErrUnreachable.
func NewGateway(patientBaseURL, appointmentBaseURL string, timeout time.Duration) *Gateway {
	return &Gateway{
		client:             &http.Client{Timeout: timeout},
		patientBaseURL:     patientBaseURL,
		appointmentBaseURL: appointmentBaseURL,
	}
}

// FetchIdentity retrieves demographics from the patient service.
func (g *Gateway) FetchIdentity(ctx context.Context, patientID, token string) (*IdentityData, error) {
	url := fmt.Sprintf("%s/patients/%s", g.patientBaseURL, patientID)
	body, err := g.get(ctx, url, token)
	if err != nil {
		return nil, err
	}

	var identity IdentityData
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	return &identity, nil
}

// FetchActivity retrieves the appointment list from the appointment service.
func (g *Gateway) FetchActivity(ctx context.Context, patientID, token string) ([]ActivityRecord, error) {
	url := fmt.Sprintf("%s/appointments/patient/%s", g.appointmentBaseURL, patientID)
	body, err := g.get(ctx, url, token)
	if err != nil {
		return nil, err
	}

	var activity []ActivityRecord
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, fmt.Errorf("decode activity response: %w", err)
	}
	return activity, nil
}

// get performs one GET with the caller's token forwarded as a cookie
// credential, the convention the upstream services authenticate with.
func (g *Gateway) get(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Message: upstreamMessage(body, resp.StatusCode)}
	}
	return body, nil
}

// upstreamMessage extracts a human-readable message from an error response
// body, falling back to the HTTP status text.
func upstreamMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}
