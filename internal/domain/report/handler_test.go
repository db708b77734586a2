package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinical-history/internal/platform/auth"
	"github.com/ehr/clinical-history/internal/platform/cache"
	"github.com/ehr/clinical-history/internal/platform/upstream"
)

func patientMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, auth.UserIDKey, "test-user")
			ctx = context.WithValue(ctx, auth.UserRolesKey, []string{auth.RolePatient})
			ctx = context.WithValue(ctx, auth.RawTokenKey, "tok")
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func setup(records *mockRecords, gateway *mockIdentityGateway, activity *mockActivity) *echo.Echo {
	resolver := upstream.NewIdentityResolver(cache.NewMemoryStore(), gateway, time.Hour, zerolog.Nop())
	svc := NewService(records, resolver, activity, zerolog.Nop())

	e := echo.New()
	api := e.Group("/histories", patientMiddleware())
	NewHandler(svc).RegisterRoutes(api)
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetReport_OK(t *testing.T) {
	records := newMockRecords()
	record := records.add(newRecord())
	gateway := &mockIdentityGateway{identity: &upstream.IdentityData{
		Name: "Ann", Surname: "Lee", Birthdate: "1990-01-01", DNI: "X1", City: "Metropolis",
	}}

	e := setup(records, gateway, &mockActivity{})
	rec := get(e, "/histories/"+record.ID.String()+"/report")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename="+ReportFileName {
		t.Errorf("unexpected disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Error("expected pdf body")
	}
}

func TestGetReport_NotFound(t *testing.T) {
	e := setup(newMockRecords(), &mockIdentityGateway{}, &mockActivity{})
	rec := get(e, "/histories/"+uuid.New().String()+"/report")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Clinical history not found") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetReport_InvalidID(t *testing.T) {
	e := setup(newMockRecords(), &mockIdentityGateway{}, &mockActivity{})
	rec := get(e, "/histories/nope/report")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Clinical history ID is not valid") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetReport_UpstreamFailure(t *testing.T) {
	records := newMockRecords()
	record := records.add(newRecord())
	gateway := &mockIdentityGateway{err: upstream.ErrUnreachable}

	e := setup(records, gateway, &mockActivity{})
	rec := get(e, "/histories/"+record.ID.String()+"/report")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to fetch patient data. Service is unreachable.") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "%PDF-") {
		t.Error("no pdf bytes may be written on failure")
	}
}
