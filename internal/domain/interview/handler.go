package interview

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/careflow/careflow/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("clinician", "technician"))
	g.POST("/encounters/:id/modules", h.AddModules)
	g.PATCH("/encounters/:id/answers", h.SaveAnswers)
	g.GET("/encounters/:id/answers", h.GetAnswers)
	g.GET("/encounters/:id/questions", h.ListQuestions)
	g.GET("/encounters/:id/assignments", h.ListAssignments)
	g.POST("/assignments/:id/lock", h.LockAssignment)
	g.POST("/assignments/:id/unlock", h.UnlockAssignment)
	g.GET("/assignments/:id/status", h.GetStatus)
	g.GET("/assignments/:id/lock-events", h.ListLockEvents)
}

type addModulesRequest struct {
	Modules []ModuleType `json:"modules"`
}

func (h *Handler) AddModules(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req addModulesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Modules) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "modules is required")
	}
	for _, t := range req.Modules {
		if !t.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown module type: "+string(t))
		}
	}
	if err := h.svc.AddModules(c.Request().Context(), encounterID, req.Modules); err != nil {
		return mapError(err)
	}
	assignments, err := h.svc.Assignments(c.Request().Context(), encounterID, false)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, assignments)
}

type saveAnswersRequest struct {
	Answers     map[string]interface{} `json:"answers"`
	TakeawayKit bool                   `json:"takeaway_kit"`
}

func (h *Handler) SaveAnswers(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req saveAnswersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SaveAnswers(c.Request().Context(), encounterID, req.Answers, req.TakeawayKit); err != nil {
		return mapError(err)
	}
	set, err := h.svc.GetAnswers(c.Request().Context(), encounterID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) GetAnswers(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	set, err := h.svc.GetAnswers(c.Request().Context(), encounterID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) ListQuestions(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	activeOnly := boolParam(c, "active_only", true)
	explicitOnly := boolParam(c, "explicit_only", false)

	items, err := h.svc.ListQuestions(c.Request().Context(), encounterID, activeOnly, explicitOnly)
	if err != nil {
		return mapError(err)
	}
	if items == nil {
		items = []QuestionListItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAssignments(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	activeOnly := boolParam(c, "active_only", false)

	assignments, err := h.svc.Assignments(c.Request().Context(), encounterID, activeOnly)
	if err != nil {
		return mapError(err)
	}
	if assignments == nil {
		assignments = []*Assignment{}
	}
	return c.JSON(http.StatusOK, assignments)
}

func (h *Handler) LockAssignment(c echo.Context) error {
	return h.setLock(c, true)
}

func (h *Handler) UnlockAssignment(c echo.Context) error {
	return h.setLock(c, false)
}

func (h *Handler) setLock(c echo.Context, locked bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if locked {
		err = h.svc.Lock(c.Request().Context(), id)
	} else {
		err = h.svc.Unlock(c.Request().Context(), id)
	}
	if err != nil {
		return mapError(err)
	}
	status, changedAt, err := h.svc.GetStatus(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"locked":            locked,
		"status":            status,
		"status_changed_at": changedAt,
	})
}

func (h *Handler) GetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	status, changedAt, err := h.svc.GetStatus(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":            status,
		"status_changed_at": changedAt,
	})
}

func (h *Handler) ListLockEvents(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, err := h.svc.LockEvents(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if events == nil {
		events = []*LockEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

// mapError translates domain errors into HTTP responses. Validation failures
// keep their field and validation type so clients can attach them to inputs.
func mapError(err error) error {
	var tooMany *TooManyModulesError
	var notRequestable *ModuleNotRequestableError
	var validation *ActivityValidationError
	var notFound *ModuleNotFoundError
	switch {
	case errors.As(err, &tooMany):
		return echo.NewHTTPError(http.StatusBadRequest, tooMany.Error())
	case errors.As(err, &notRequestable):
		return echo.NewHTTPError(http.StatusBadRequest, notRequestable.Error())
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
			"field":           validation.Field,
			"validation_type": validation.ValidationType,
		})
	case errors.As(err, &notFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func boolParam(c echo.Context, name string, def bool) bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
