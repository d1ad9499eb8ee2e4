package diag

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
	"llmbridge/internal/usage"
	"llmbridge/internal/version"
)

// Handler holds the HTTP handlers
type Handler struct {
	registry *backends.Registry
	reader   usage.Reader
}

// NewHandler creates a new handler over the registry and optional usage reader.
func NewHandler(registry *backends.Registry, reader usage.Reader) *Handler {
	return &Handler{
		registry: registry,
		reader:   reader,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Profiles handles GET /profiles: curated backend groups for setup flows.
func (h *Handler) Profiles(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"profiles": backends.Profiles(),
	})
}

// backendView is the wire shape of one registered backend instance.
type backendView struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Kind     core.BackendKind        `json:"kind"`
	Status   backends.InstanceStatus `json:"status"`
	Priority int                     `json:"priority"`
	Models   int                     `json:"models"`
	Metrics  core.InstanceMetrics    `json:"metrics"`
}

func viewOf(handle *backends.Handle) backendView {
	cfg := handle.Config()
	return backendView{
		ID:       cfg.ID,
		Name:     cfg.Name,
		Kind:     cfg.Kind,
		Status:   handle.Status(),
		Priority: cfg.Priority,
		Models:   len(handle.Catalog()),
		Metrics:  handle.Metrics(),
	}
}

// ListBackends handles GET /backends
func (h *Handler) ListBackends(c echo.Context) error {
	handles := h.registry.List()
	out := make([]backendView, 0, len(handles))
	for _, handle := range handles {
		out = append(out, viewOf(handle))
	}
	return c.JSON(http.StatusOK, out)
}

// GetBackend handles GET /backends/:id, including the model catalog.
func (h *Handler) GetBackend(c echo.Context) error {
	handle, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown backend: " + c.Param("id"),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"backend": viewOf(handle),
		"catalog": handle.Catalog(),
	})
}

// TestBackend handles POST /backends/:id/test
func (h *Handler) TestBackend(c echo.Context) error {
	handle, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown backend: " + c.Param("id"),
		})
	}

	ok, err := handle.TestConnection(c.Request().Context())
	resp := map[string]any{"ok": ok}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// usageParams parses start/end/interval query parameters.
func usageParams(c echo.Context) (usage.QueryParams, error) {
	var params usage.QueryParams
	if s := c.QueryParam("start"); s != "" {
		ts, err := time.Parse("2006-01-02", s)
		if err != nil {
			return params, err
		}
		params.StartDate = ts
	}
	if s := c.QueryParam("end"); s != "" {
		ts, err := time.Parse("2006-01-02", s)
		if err != nil {
			return params, err
		}
		params.EndDate = ts
	}
	params.Interval = c.QueryParam("interval")
	return params, nil
}

// UsageSummary handles GET /usage/summary
func (h *Handler) UsageSummary(c echo.Context) error {
	if h.reader == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "usage journal disabled",
		})
	}

	params, err := usageParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid date, want YYYY-MM-DD: " + err.Error(),
		})
	}

	summary, err := h.reader.GetSummary(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	byBackend, err := h.reader.GetBackendUsage(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"summary":  summary,
		"backends": byBackend,
	})
}

// UsagePeriods handles GET /usage/periods
func (h *Handler) UsagePeriods(c echo.Context) error {
	if h.reader == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "usage journal disabled",
		})
	}

	params, err := usageParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid date, want YYYY-MM-DD: " + err.Error(),
		})
	}

	periods, err := h.reader.GetPeriodUsage(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, periods)
}
