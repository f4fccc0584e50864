// Package handlers exposes the two collector surfaces: the forgiving
// ingestion endpoint consumed by the tracker script and the aggregation
// endpoint consumed by the dashboard.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/aggregate"
	"github.com/BiliTheKid/dolpyitcs/internal/dlq"
	"github.com/BiliTheKid/dolpyitcs/internal/httputil"
	"github.com/BiliTheKid/dolpyitcs/internal/logging"
	"github.com/BiliTheKid/dolpyitcs/internal/metrics"
	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/normalizer"
	"github.com/BiliTheKid/dolpyitcs/internal/ratelimit"
	"github.com/BiliTheKid/dolpyitcs/internal/store"
)

type Handler struct {
	store        store.Store
	agg          *aggregate.Service
	limiter      ratelimit.RateLimiter
	deadLetters  dlq.Writer // nil when the DLQ is disabled
	log          *logging.Logger
	maxEventSize int64
	queryTimeout time.Duration
}

func New(st store.Store, agg *aggregate.Service, limiter ratelimit.RateLimiter, deadLetters dlq.Writer, log *logging.Logger, maxEventSize int64, queryTimeout time.Duration) *Handler {
	return &Handler{
		store:        st,
		agg:          agg,
		limiter:      limiter,
		deadLetters:  deadLetters,
		log:          log,
		maxEventSize: maxEventSize,
		queryTimeout: queryTimeout,
	}
}

type collectResponse struct {
	Success bool  `json:"success"`
	EventID int64 `json:"eventId,omitempty"`
}

// Collect ingests one tracker event per request. Payload problems are
// rejected internally (logged and counted) but the response is a success
// either way: analytics failures must never leak into the visited page.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	clientIP := httputil.ClientIP(r)

	allowed, err := h.limiter.Allow(r.Context(), clientIP)
	if err != nil {
		// Rate limiter outage must not take ingestion down with it.
		h.log.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
		allowed = true
	}
	if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	receivedAt := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxEventSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.recordReject(r, models.NewReject(models.RejectTooLarge, "payload exceeds %d bytes", h.maxEventSize))
			httputil.WriteJSON(w, http.StatusOK, collectResponse{Success: true})
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ev, err := normalizer.Normalize(body, receivedAt)
	if err != nil {
		h.recordReject(r, err)
		httputil.WriteJSON(w, http.StatusOK, collectResponse{Success: true})
		return
	}
	ev.IP = clientIP

	if err := h.store.Append(r.Context(), ev); err != nil {
		h.log.ErrorContext(r.Context(), "event append failed",
			logging.EventType(string(ev.Type)), logging.Error(err))
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
		h.deadLetter(r, body, clientIP, err)
		// The tracker is still acknowledged; the payload is preserved in the
		// DLQ instead of surfacing a failure into the visited page.
		httputil.WriteJSON(w, http.StatusOK, collectResponse{Success: true})
		return
	}

	metrics.EventsTotal.WithLabelValues(string(ev.Type), "accepted").Inc()
	metrics.EventBytesTotal.Add(float64(len(body)))
	h.log.DebugContext(r.Context(), "event stored",
		logging.EventID(ev.ID), logging.EventType(string(ev.Type)))

	httputil.WriteJSON(w, http.StatusOK, collectResponse{Success: true, EventID: ev.ID})
}

func (h *Handler) recordReject(r *http.Request, err error) {
	reason := models.RejectMalformedPayload
	var rej *models.Reject
	if errors.As(err, &rej) {
		reason = rej.Reason
	}
	metrics.RejectsTotal.WithLabelValues(string(reason)).Inc()
	h.log.DebugContext(r.Context(), "event rejected",
		logging.Reason(string(reason)),
		logging.IP(httputil.ClientIP(r)),
		logging.Error(err),
	)
}

func (h *Handler) deadLetter(r *http.Request, body []byte, clientIP string, cause error) {
	if h.deadLetters == nil {
		return
	}
	if err := h.deadLetters.Write(r.Context(), body, clientIP, cause, "store_write_failed"); err != nil {
		h.log.ErrorContext(r.Context(), "dead letter write failed", logging.Error(err))
	}
}

// Analytics answers dashboard queries with an aggregate snapshot. An unknown
// range selector resolves to the default range; only store failures with no
// cached fallback produce the explicit error state.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	q := aggregate.Query{
		Selector: r.URL.Query().Get("range"),
		Hostname: r.URL.Query().Get("hostname"),
	}

	snap, err := h.agg.Snapshot(ctx, q)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snap)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports store reachability plus all-time log totals.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	events, visitors, sessions, err := h.store.Totals(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"stats": map[string]int64{
			"total_events":   events,
			"total_visitors": visitors,
			"total_sessions": sessions,
		},
	})
}
