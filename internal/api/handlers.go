package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/readq/internal/bulk"
	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/service"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/storage"
)

type AppDeps struct {
	Service *service.Service
	Token   string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/queue", handleQueue(deps))
		r.Get("/queue/stats", handleQueueStats(deps))
		r.Put("/queue/items", handleUpsertItems(deps))
		r.Get("/queue/ranked", handleRanked(deps))
		r.Get("/queue/{id}/priority", handlePriority(deps))
		r.Post("/queue/{id}/postpone", handlePostpone(deps))
		r.Post("/queue/bulk/{op}", handleBulk(deps))

		r.Post("/sessions/blocks", handleSessionBlocks(deps))

		r.Post("/stream", handleStream(deps))
		r.Post("/stream/start", handleStreamStart(deps))
		r.Put("/stream/position", handleStreamPosition(deps))

		r.Post("/items/{id}/rating", handleRate(deps))
		r.Get("/items/{id}/params", handleParams(deps))

		r.Get("/algorithm/statistics", handleStatistics(deps))
		r.Get("/algorithm/compare", handleCompare(deps))
		r.Post("/algorithm/optimize", handleOptimize(deps))
		r.Get("/algorithm/optimize/{jobId}", handleOptimization(deps))

		r.Post("/documents/schedule", handleScheduleDocuments(deps))

		r.Put("/rss/items", handleUpsertRSS(deps))
		r.Post("/rss/{feedId}/items/{itemId}/read", handleMarkRead(deps))

		r.Get("/presets", handlePresets)
		r.Get("/events", handleEvents(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleQueue lists the cached queue. limit=0 returns everything after offset.
func handleQueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseIntParam(r, "limit", 0)
		if err != nil {
			serviceError(w, err)
			return
		}
		offset, err := parseIntParam(r, "offset", 0)
		if err != nil {
			serviceError(w, err)
			return
		}
		items := deps.Service.Queue()
		if offset >= len(items) {
			items = nil
		} else {
			items = items[offset:]
		}
		if limit > 0 && limit < len(items) {
			items = items[:limit]
		}
		if items == nil {
			items = []queue.Item{}
		}
		writeJSON(w, items)
	}
}

func handleQueueStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Service.Stats())
	}
}

type itemsRequest struct {
	Items []queue.Item `json:"items"`
}

type upsertResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func handleUpsertItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req itemsRequest
		if !readJSON(w, r, &req) {
			return
		}
		ids, err := deps.Service.UpsertItems(r.Context(), req.Items)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, upsertResponse{Count: len(ids), IDs: ids})
	}
}

func handleRanked(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ranked, err := deps.Service.Ranked(r.URL.Query().Get("preset"))
		if err != nil {
			serviceError(w, err)
			return
		}
		if ranked == nil {
			ranked = []queue.Scored{}
		}
		writeJSON(w, ranked)
	}
}

func handlePriority(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Service.Priority(chi.URLParam(r, "id"), r.URL.Query().Get("preset"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, p)
	}
}

type postponeRequest struct {
	Days int `json:"days"`
}

type postponeResponse struct {
	ID      string    `json:"id"`
	DueDate time.Time `json:"due_date"`
}

func handlePostpone(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postponeRequest
		if !readJSON(w, r, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		due, err := deps.Service.Postpone(r.Context(), id, req.Days)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, postponeResponse{ID: id, DueDate: due})
	}
}

type bulkRequest struct {
	IDs []string `json:"ids"`
}

func handleBulk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, err := bulk.ParseOp(chi.URLParam(r, "op"))
		if err != nil {
			serviceError(w, err)
			return
		}
		var req bulkRequest
		if !readJSON(w, r, &req) {
			return
		}
		res, err := deps.Service.Bulk(r.Context(), req.IDs, op)
		if err != nil {
			serviceError(w, err)
			return
		}
		if res.Succeeded == nil {
			res.Succeeded = []string{}
		}
		if res.Failed == nil {
			res.Failed = []string{}
		}
		if res.Errors == nil {
			res.Errors = []string{}
		}
		writeJSON(w, res)
	}
}

func handleSessionBlocks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.BlocksRequest
		if !readJSON(w, r, &req) {
			return
		}
		blocks, err := deps.Service.SessionBlocks(req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, blocks)
	}
}

func handleStream(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.StreamRequest
		if !readJSON(w, r, &req) {
			return
		}
		items, err := deps.Service.Stream(r.Context(), req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, items)
	}
}

type streamStartRequest struct {
	SessionKey string `json:"session_key"`
	Total      int    `json:"total"`
	Reviewed   int    `json:"reviewed"`
}

func handleStreamStart(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req streamStartRequest
		if !readJSON(w, r, &req) {
			return
		}
		if req.SessionKey == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sessionKey is required")
			return
		}
		res, err := deps.Service.StreamStart(r.Context(), req.SessionKey, req.Total, req.Reviewed)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

type streamPositionRequest struct {
	SessionKey string `json:"session_key"`
	Position   int    `json:"position"`
}

func handleStreamPosition(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req streamPositionRequest
		if !readJSON(w, r, &req) {
			return
		}
		if req.SessionKey == "" || req.Position < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sessionKey and a non-negative position are required")
			return
		}
		if err := deps.Service.StreamSave(r.Context(), req.SessionKey, req.Position); err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "saved"})
	}
}

type rateRequest struct {
	Rating srs.Rating `json:"rating"`
}

func handleRate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rateRequest
		if !readJSON(w, r, &req) {
			return
		}
		st, err := deps.Service.Rate(r.Context(), chi.URLParam(r, "id"), req.Rating)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleParams(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Service.AlgorithmParams(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleStatistics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Service.ReviewStatistics()
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, stats)
	}
}

func handleCompare(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmp, err := deps.Service.CompareAlgorithms()
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, cmp)
	}
}

// handleOptimize runs the optimizer inline, or queues it for the worker
// when async=true.
func handleOptimize(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var initial optimizer.Params
		if !readJSON(w, r, &initial) {
			return
		}
		async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
		if async {
			id, err := deps.Service.EnqueueOptimize(initial)
			if err != nil {
				serviceError(w, err)
				return
			}
			writeJSONStatus(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "queued"})
			return
		}
		res, err := deps.Service.Optimize(r.Context(), initial)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

func handleOptimization(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Service.GetOptimization(chi.URLParam(r, "jobId"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, job)
	}
}

type scheduleRequest struct {
	MaxDaily         int `json:"max_daily"`
	CardsPerDocument int `json:"cards_per_document"`
}

func handleScheduleDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if !readJSON(w, r, &req) {
			return
		}
		ids, err := deps.Service.ScheduleDocuments(req.MaxDaily, req.CardsPerDocument)
		if err != nil {
			serviceError(w, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, map[string][]string{"document_ids": ids})
	}
}

type rssItem struct {
	ID               string    `json:"id"`
	FeedID           string    `json:"feed_id"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	Tags             []string  `json:"tags"`
	EstimatedMinutes float64   `json:"estimated_minutes"`
	PublishedAt      time.Time `json:"published_at"`
}

type rssItemsRequest struct {
	Items []rssItem `json:"items"`
}

func handleUpsertRSS(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rssItemsRequest
		if !readJSON(w, r, &req) {
			return
		}
		items := make([]storage.RSSItem, len(req.Items))
		for i, it := range req.Items {
			items[i] = storage.RSSItem{
				ID:               it.ID,
				FeedID:           it.FeedID,
				Title:            it.Title,
				Category:         it.Category,
				Tags:             it.Tags,
				EstimatedMinutes: it.EstimatedMinutes,
				PublishedAt:      it.PublishedAt,
			}
		}
		if err := deps.Service.UpsertRSS(r.Context(), items); err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, map[string]int{"count": len(items)})
	}
}

type readRequest struct {
	Read *bool `json:"read"`
}

func handleMarkRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req readRequest
		if !readJSON(w, r, &req) {
			return
		}
		read := req.Read == nil || *req.Read
		err := deps.Service.MarkRead(r.Context(), chi.URLParam(r, "feedId"), chi.URLParam(r, "itemId"), read)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"read": read})
	}
}

func handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, queue.Presets())
}

// parseIntParam reads a non-negative integer query parameter.
func parseIntParam(r *http.Request, key string, defaultVal int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errs.Validationf("%s must be a non-negative integer", key)
	}
	return v, nil
}
