package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nvandessel/tier-alloc/internal/allocation"
	"github.com/nvandessel/tier-alloc/internal/codec"
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/ingest"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/ratelimit"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// defaultListLimit caps GET /api/allocations when no limit is given.
const defaultListLimit = 50

// Handler serves the /api routes.
type Handler struct {
	manager *strategy.Manager
	store   store.Store
	metrics *Metrics
	logger  *slog.Logger

	// limiter throttles allocation runs per client IP; nil means unlimited.
	limiter *ratelimit.Limiter
}

// NewHandler creates the API handler.
func NewHandler(manager *strategy.Manager, st store.Store, metrics *Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		store:   st,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes mounts the API on api.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/delivery-types", h.listDeliveryTypes)

	weights := api.Group("/weights/:type")
	{
		weights.GET("", h.getWeights)
		weights.PUT("", h.putWeights)
		weights.POST("/import", h.importWeights)
	}

	allocations := api.Group("/allocations")
	{
		allocations.POST("", h.rateLimit(), h.createAllocation)
		allocations.GET("", h.listAllocations)
		allocations.GET("/:id", h.getAllocation)
		allocations.GET("/:id/encoded", h.getEncoded)
		allocations.GET("/:id/export", h.exportAllocation)
	}
}

// SetRateLimit limits allocation runs to perMinute per client IP. Zero
// removes the limit.
func (h *Handler) SetRateLimit(perMinute int) {
	if perMinute <= 0 {
		h.limiter = nil
		return
	}
	h.limiter = ratelimit.PerMinute(float64(perMinute), perMinute)
}

func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, please try again shortly"})
			return
		}
		c.Next()
	}
}

// allocationRequest is the POST /api/allocations body. Decimal fields
// accept JSON numbers or strings.
type allocationRequest struct {
	DeliveryType constants.DeliveryType `json:"delivery_type" binding:"required"`
	Target       *decimal.Decimal       `json:"target" binding:"required"`
	Groups       []string               `json:"groups"`
	RatioA       *decimal.Decimal       `json:"ratio_a"`
	RatioB       *decimal.Decimal       `json:"ratio_b"`

	// Save defaults to true.
	Save *bool `json:"save"`
}

type allocationResponse struct {
	ID               string                  `json:"id,omitempty"`
	DeliveryType     constants.DeliveryType  `json:"delivery_type"`
	Variant          models.Variant          `json:"variant"`
	Target           decimal.Decimal         `json:"target"`
	Achieved         decimal.Decimal         `json:"achieved"`
	Error            decimal.Decimal         `json:"error"`
	Iterations       int                     `json:"iterations"`
	ExceedsThreshold bool                    `json:"exceeds_threshold,omitempty"`
	Matrix           models.AllocationMatrix `json:"matrix"`
	Encoded          []string                `json:"encoded"`
}

type deliveryTypeResponse struct {
	DeliveryType  constants.DeliveryType `json:"delivery_type"`
	Description   string                 `json:"description"`
	Variant       models.Variant         `json:"variant"`
	MaxIterations int                    `json:"max_iterations"`
	FixedGroups   []string               `json:"fixed_groups,omitempty"`
	Split         *strategy.SplitSpec    `json:"split,omitempty"`
}

func (h *Handler) listDeliveryTypes(c *gin.Context) {
	strategies := h.manager.DeliveryTypes()
	out := make([]deliveryTypeResponse, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, deliveryTypeResponse{
			DeliveryType:  s.DeliveryType,
			Description:   s.Description,
			Variant:       s.Variant,
			MaxIterations: s.MaxIterations,
			FixedGroups:   s.FixedGroups,
			Split:         s.Split,
		})
	}
	c.JSON(http.StatusOK, gin.H{"delivery_types": out})
}

// deliveryType resolves the :type parameter, writing 404 when unsupported.
func (h *Handler) deliveryType(c *gin.Context) (constants.DeliveryType, bool) {
	dt := constants.DeliveryType(c.Param("type"))
	if !h.manager.Supported(dt) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unsupported delivery type %q", dt)})
		return "", false
	}
	return dt, true
}

func (h *Handler) getWeights(c *gin.Context) {
	dt, ok := h.deliveryType(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	groups, err := h.store.Groups(ctx, dt)
	if err != nil {
		h.internalError(c, "load groups", err)
		return
	}
	weights, err := h.store.Weights(ctx, dt, groups)
	if err != nil {
		h.internalError(c, "load weights", err)
		return
	}

	rows := make([]store.GroupWeights, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, store.GroupWeights{Group: g, Weights: weights[g]})
	}
	c.JSON(http.StatusOK, gin.H{
		"delivery_type": dt,
		"tiers":         models.TierLabels(),
		"rows":          rows,
	})
}

func (h *Handler) putWeights(c *gin.Context) {
	dt, ok := h.deliveryType(c)
	if !ok {
		return
	}
	var rows []store.GroupWeights
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.replaceWeights(c, dt, rows)
}

func (h *Handler) importWeights(c *gin.Context) {
	dt, ok := h.deliveryType(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing workbook upload field \"file\""})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	rows, err := ingest.ReadWeights(src, c.PostForm("sheet"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.replaceWeights(c, dt, rows)
}

func (h *Handler) replaceWeights(c *gin.Context, dt constants.DeliveryType, rows []store.GroupWeights) {
	if errs := store.ValidateWeights(rows); len(errs) > 0 {
		issues := make([]string, len(errs))
		for i, e := range errs {
			issues[i] = e.String()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid weights", "issues": issues})
		return
	}
	if err := h.store.PutWeights(c.Request.Context(), dt, rows); err != nil {
		h.internalError(c, "store weights", err)
		return
	}
	h.logger.Info("weights replaced", "delivery_type", string(dt), "groups", len(rows))
	c.JSON(http.StatusOK, gin.H{"delivery_type": dt, "groups": len(rows)})
}

func (h *Handler) createAllocation(c *gin.Context) {
	var req allocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dt := req.DeliveryType
	if !h.manager.Supported(dt) {
		h.metrics.allocationsTotal.WithLabelValues(unknownDeliveryType, outcomeUnsupported).Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unsupported delivery type %q", dt)})
		return
	}

	start := time.Now()
	out, err := h.manager.Allocate(c.Request.Context(), strategy.Request{
		DeliveryType: dt,
		Target:       *req.Target,
		Groups:       req.Groups,
		RatioA:       req.RatioA,
		RatioB:       req.RatioB,
	})
	elapsed := time.Since(start)

	var inputErr *allocation.InputError
	var configErr *allocation.ConfigurationError
	switch {
	case errors.As(err, &configErr):
		h.metrics.ObserveAllocation(string(dt), outcomeConfig, elapsed, 0, 0)
		c.JSON(http.StatusBadRequest, gin.H{"error": configErr.Error(), "kind": "configuration"})
		return
	case errors.As(err, &inputErr):
		h.metrics.ObserveAllocation(string(dt), outcomeInput, elapsed, 0, 0)
		h.logger.Warn("allocation skipped", "delivery_type", string(dt), "reason", inputErr.Reason)
		resp := gin.H{"error": inputErr.Error(), "kind": "input"}
		if out != nil {
			resp["matrix"] = out.Matrix
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	case err != nil:
		h.metrics.ObserveAllocation(string(dt), outcomeFailed, elapsed, 0, 0)
		h.internalError(c, "allocate", err)
		return
	}
	h.metrics.ObserveAllocation(string(dt), outcomeOK, elapsed, out.Error.InexactFloat64(), out.Iterations)

	resp := allocationResponse{
		DeliveryType: dt,
		Variant:      out.Strategy.Variant,
		Target:       out.Target,
		Achieved:     out.Achieved,
		Error:        out.Error,
		Iterations:   out.Iterations,
		Matrix:       out.Matrix,
		Encoded:      encodedLines(out.Matrix),

		ExceedsThreshold: out.Error.GreaterThan(h.manager.Threshold()),
	}

	if req.Save == nil || *req.Save {
		id, err := h.store.SaveAllocation(c.Request.Context(), out.Record())
		if err != nil {
			h.internalError(c, "save allocation", err)
			return
		}
		resp.ID = id
		c.JSON(http.StatusCreated, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listAllocations(c *gin.Context) {
	dt := constants.DeliveryType(c.Query("type"))
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	records, err := h.store.ListAllocations(c.Request.Context(), dt, limit)
	if err != nil {
		h.internalError(c, "list allocations", err)
		return
	}
	summaries := make([]gin.H, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, gin.H{
			"id":            r.ID,
			"delivery_type": r.DeliveryType,
			"variant":       r.Variant,
			"target":        r.Target,
			"achieved":      r.Achieved,
			"error":         r.Error,
			"iterations":    r.Iterations,
			"created_at":    r.CreatedAt,
			"groups":        r.GroupCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"allocations": summaries})
}

// record loads :id, writing 404 or 500 on failure.
func (h *Handler) record(c *gin.Context) (*store.Record, bool) {
	rec, err := h.store.GetAllocation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "allocation not found"})
		return nil, false
	}
	if err != nil {
		h.internalError(c, "load allocation", err)
		return nil, false
	}
	return rec, true
}

func (h *Handler) getAllocation(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) getEncoded(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      rec.ID,
		"entries": codec.EncodeMatrix(rec.Matrix),
	})
}

func (h *Handler) exportAllocation(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := ingest.WriteAllocation(&buf, rec); err != nil {
		h.internalError(c, "export allocation", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "allocation-"+rec.ID+".xlsx"))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("request failed", "op", op, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + ": " + err.Error()})
}

func encodedLines(m models.AllocationMatrix) []string {
	entries := codec.EncodeMatrix(m)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}
