package handler

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	apimw "github.com/ricirt/community-digest/internal/api/middleware"
	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/service"
)

// DigestHandler serves the update trigger and the summary query.
type DigestHandler struct {
	svc    *service.DigestService
	logger *zap.Logger
}

func NewDigestHandler(svc *service.DigestService, logger *zap.Logger) *DigestHandler {
	return &DigestHandler{svc: svc, logger: logger}
}

type updateResponse struct {
	Status string `json:"status"`
	domain.UpdateResult
}

// Update handles POST /api/v1/update
//
// @Summary     Fetch, rank and enqueue items from the given communities
// @Tags        digest
// @Accept      json
// @Produce     json
// @Param       body  body      domain.UpdateRequest  true  "Communities and time window"
// @Success     200   {object}  updateResponse
// @Failure     400   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Failure     429   {object}  map[string]string
// @Failure     503   {object}  map[string]string
// @Router      /api/v1/update [post]
func (h *DigestHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Update(r.Context(), req)
	if err != nil {
		h.logger.Warn("update failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Int("fetched", res.Fetched),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updateResponse{Status: "completed", UpdateResult: res})
}

type summaryResponse struct {
	Status string `json:"status"`
	*domain.Summary
}

type emptySummaryResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	TotalProcessed int    `json:"total_processed"`
}

// Summary handles GET /api/v1/summary
//
// @Summary  Stats and per-community digest for the latest processed day
// @Tags     digest
// @Produce  json
// @Success  200  {object}  summaryResponse
// @Failure  500  {object}  map[string]string
// @Router   /api/v1/summary [get]
func (h *DigestHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		respondJSON(w, http.StatusOK, emptySummaryResponse{
			Status:  "empty",
			Message: "nothing processed yet",
		})
		return
	}
	if err != nil {
		h.logger.Error("summary failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summaryResponse{Status: "ok", Summary: sum})
}

// QueueDepth handles GET /api/v1/queue
//
// @Summary  Work queue depth snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Failure  503  {object}  map[string]string
// @Router   /api/v1/queue [get]
func (h *DigestHandler) QueueDepth(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.QueueDepth(r.Context())
	if err != nil {
		h.logger.Warn("queue depth failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"queue_depth": n})
}
