package history

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinical-history/internal/platform/auth"
	"github.com/ehr/clinical-history/internal/platform/blobstore"
	"github.com/ehr/clinical-history/pkg/pagination"
)

type Handler struct {
	svc   *Service
	blobs blobstore.BlobStore
}

func NewHandler(svc *Service, blobs blobstore.BlobStore) *Handler {
	return &Handler{svc: svc, blobs: blobs}
}

// RegisterRoutes mounts the record routes on the /histories group. Reads are
// open to any authenticated role; clinical mutations need doctor or clinic
// admin; whole-record deletes need admin.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequirePatientOrHigher())
	read.GET("", h.List)
	read.GET("/:id", h.Get)
	read.GET("/patient/:patientId", h.GetByPatient)
	read.GET("/:id/file/:fileId", h.DownloadFile)

	write := api.Group("", auth.RequireDoctorOrHigher())
	write.POST("", h.Create)
	write.POST("/:id/condition", h.AddCondition)
	write.PUT("/:id/condition/:conditionId", h.UpdateCondition)
	write.DELETE("/:id/condition/:conditionId", h.RemoveCondition)
	write.POST("/:id/treatment", h.AddTreatment)
	write.PUT("/:id/treatment/:treatmentId", h.UpdateTreatment)
	write.DELETE("/:id/treatment/:treatmentId", h.RemoveTreatment)
	write.POST("/:id/image", h.UploadImage)
	write.DELETE("/:id/image/:fileId", h.RemoveImage)
	write.POST("/:id/analytic", h.UploadAnalytic)
	write.DELETE("/:id/analytic/:fileId", h.RemoveAnalytic)
	write.POST("/:id/allergy", h.AddAllergy)
	write.DELETE("/:id/allergy/:allergy", h.RemoveAllergy)

	admin := api.Group("", auth.RequireAdmin())
	admin.DELETE("/:id", h.Delete)
	admin.DELETE("/patient/:patientId", h.DeleteByPatient)
}

// historyID parses the :id path parameter with the boundary messages the
// API clients depend on.
func historyID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Clinical history ID is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Clinical history ID is not valid")
	}
	return id, nil
}

func subID(c echo.Context, param, label string) (uuid.UUID, error) {
	raw := c.Param(param)
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, label+" is not valid")
	}
	return id, nil
}

// mapErr translates service and repository errors into HTTP errors.
// Anything that is neither a known sentinel nor a validation rejection is an
// infrastructure failure and surfaces as a 500.
func mapErr(err error) error {
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConditionNotFound),
		errors.Is(err, ErrTreatmentNotFound),
		errors.Is(err, ErrFileNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicatePatient):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &vErr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// -- Record handlers --

func (h *Handler) Create(c echo.Context) error {
	var body struct {
		PatientID string `json:"patientId"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Patient ID is required")
	}
	patientID, err := uuid.Parse(body.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Patient ID is not valid")
	}

	record, err := h.svc.Create(c.Request().Context(), patientID)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	record, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) GetByPatient(c echo.Context) error {
	patientID, err := subID(c, "patientId", "Patient ID")
	if err != nil {
		return err
	}
	record, err := h.svc.GetByPatient(c.Request().Context(), patientID)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return mapErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteByPatient(c echo.Context) error {
	patientID, err := subID(c, "patientId", "Patient ID")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteByPatient(c.Request().Context(), patientID); err != nil {
		return mapErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Condition handlers --

func (h *Handler) AddCondition(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	var cond Condition
	if err := c.Bind(&cond); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	record, err := h.svc.AddCondition(c.Request().Context(), id, &cond)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) UpdateCondition(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	conditionID, err := subID(c, "conditionId", "Condition ID")
	if err != nil {
		return err
	}
	var cond Condition
	if err := c.Bind(&cond); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	record, err := h.svc.UpdateCondition(c.Request().Context(), id, conditionID, &cond)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) RemoveCondition(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	conditionID, err := subID(c, "conditionId", "Condition ID")
	if err != nil {
		return err
	}
	record, err := h.svc.RemoveCondition(c.Request().Context(), id, conditionID)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

// -- Treatment handlers --

func (h *Handler) AddTreatment(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	var t Treatment
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	record, err := h.svc.AddTreatment(c.Request().Context(), id, &t)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) UpdateTreatment(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	treatmentID, err := subID(c, "treatmentId", "Treatment ID")
	if err != nil {
		return err
	}
	var t Treatment
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	record, err := h.svc.UpdateTreatment(c.Request().Context(), id, treatmentID, &t)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) RemoveTreatment(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	treatmentID, err := subID(c, "treatmentId", "Treatment ID")
	if err != nil {
		return err
	}
	record, err := h.svc.RemoveTreatment(c.Request().Context(), id, treatmentID)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

// -- Attachment handlers --

func (h *Handler) UploadImage(c echo.Context) error {
	return h.upload(c, AttachmentImage)
}

func (h *Handler) UploadAnalytic(c echo.Context) error {
	return h.upload(c, AttachmentAnalytic)
}

func (h *Handler) upload(c echo.Context, kind string) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "File is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open uploaded file")
	}
	defer src.Close()

	meta := blobstore.BlobMetadata{
		OriginalName: file.Filename,
		ContentType:  file.Header.Get("Content-Type"),
		Kind:         kind,
		CreatedBy:    auth.UserIDFromContext(c.Request().Context()),
	}
	stored, err := h.blobs.Upload(c.Request().Context(), meta, src)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrFileTooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, blobstore.ErrInvalidContentType),
			errors.Is(err, blobstore.ErrMissingFileName),
			errors.Is(err, blobstore.ErrInvalidKind):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	// The attachment id is fixed up-front so the public URL can embed it.
	attachment := &Attachment{
		ID:           uuid.New(),
		Kind:         kind,
		Name:         stored.ID,
		OriginalName: file.Filename,
		ContentType:  stored.ContentType,
	}
	attachment.URL = fmt.Sprintf("/histories/%s/file/%s", id, attachment.ID)

	if _, err := h.svc.AddAttachment(c.Request().Context(), id, attachment); err != nil {
		// Roll back the orphaned blob; the record insert failed.
		_ = h.blobs.Delete(c.Request().Context(), stored.ID)
		return mapErr(err)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"message": "File uploaded successfully",
		"url":     attachment.URL,
	})
}

func (h *Handler) DownloadFile(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	fileID, err := subID(c, "fileId", "File ID")
	if err != nil {
		return err
	}

	attachment, err := h.svc.GetAttachment(c.Request().Context(), id, fileID)
	if err != nil {
		return mapErr(err)
	}

	rc, meta, err := h.blobs.Download(c.Request().Context(), attachment.Name)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, ErrFileNotFound.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, attachment.OriginalName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) RemoveImage(c echo.Context) error {
	return h.removeAttachment(c, AttachmentImage)
}

func (h *Handler) RemoveAnalytic(c echo.Context) error {
	return h.removeAttachment(c, AttachmentAnalytic)
}

func (h *Handler) removeAttachment(c echo.Context, kind string) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	fileID, err := subID(c, "fileId", "File ID")
	if err != nil {
		return err
	}

	attachment, err := h.svc.GetAttachment(c.Request().Context(), id, fileID)
	if err != nil {
		return mapErr(err)
	}
	if attachment.Kind != kind {
		return echo.NewHTTPError(http.StatusNotFound, ErrFileNotFound.Error())
	}

	record, err := h.svc.RemoveAttachment(c.Request().Context(), id, fileID)
	if err != nil {
		return mapErr(err)
	}

	// Blob cleanup is best-effort; the record no longer references it.
	if err := h.blobs.Delete(c.Request().Context(), attachment.Name); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		c.Logger().Warnf("orphaned blob %s: %v", attachment.Name, err)
	}

	return c.JSON(http.StatusOK, record)
}

// -- Allergy handlers --

func (h *Handler) AddAllergy(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	var body struct {
		Allergy string `json:"allergy"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	record, err := h.svc.AddAllergy(c.Request().Context(), id, body.Allergy)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) RemoveAllergy(c echo.Context) error {
	id, err := historyID(c)
	if err != nil {
		return err
	}
	allergy := c.Param("allergy")
	record, err := h.svc.RemoveAllergy(c.Request().Context(), id, allergy)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, record)
}
