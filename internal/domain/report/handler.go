package report

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinical-history/internal/domain/history"
	"github.com/ehr/clinical-history/internal/platform/auth"
)

// ReportFileName is the download filename for the generated PDF.
const ReportFileName = "clinical-history-report.pdf"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the report endpoint on the /histories group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/:id/report", h.GetReport, auth.RequirePatientOrHigher())
}

func (h *Handler) GetReport(c echo.Context) error {
	raw := c.Param("id")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Clinical history ID is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Clinical history ID is not valid")
	}

	token := auth.RawTokenFromContext(c.Request().Context())

	pdf, err := h.svc.Generate(c.Request().Context(), id, token)
	if err != nil {
		var failure *UpstreamFailure
		switch {
		case errors.Is(err, history.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, history.ErrNotFound.Error())
		case errors.As(err, &failure):
			return echo.NewHTTPError(http.StatusInternalServerError, failure.Message)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	c.Response().Header().Set("Content-Disposition", "attachment; filename="+ReportFileName)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
