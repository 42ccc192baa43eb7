// Package api exposes the HTTP surface of the relay: the webhook receiver,
// the manual rollup trigger, health and metrics, plus the MCP tool server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/lnsync/internal/dedup"
	"github.com/kalambet/lnsync/internal/metrics"
	"github.com/kalambet/lnsync/internal/period"
	"github.com/kalambet/lnsync/internal/pipeline"
	"github.com/kalambet/lnsync/internal/rollup"
	"github.com/kalambet/lnsync/internal/webhook"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// Processor handles one decoded webhook event.
type Processor interface {
	Process(ctx context.Context, ev webhook.Event) (pipeline.Result, error)
}

// Aggregator builds the rollup for the period anchored at anchor.
type Aggregator interface {
	Run(ctx context.Context, anchor time.Time) (rollup.Summary, error)
}

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Auth         *webhook.Authenticator
	Processor    Processor
	Rollup       Aggregator
	TriggerToken string
	// WebhookRate and RollupRate are per-IP requests per minute. Zero
	// uses 300 and 10.
	WebhookRate int
	RollupRate  int
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewRouter returns the service's http.Handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WebhookRate <= 0 {
		deps.WebhookRate = 300
	}
	if deps.RollupRate <= 0 {
		deps.RollupRate = 10
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.With(httprate.LimitByIP(deps.WebhookRate, time.Minute)).
		Post("/webhook", handleWebhook(deps))

	r.With(BearerAuth(deps.TriggerToken), httprate.LimitByIP(deps.RollupRate, time.Minute)).
		Post("/rollup", handleRollup(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WebhookResponse is the body returned for an accepted delivery.
type WebhookResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	UpdateID string `json:"update_id,omitempty"`
	PageID   string `json:"page_id,omitempty"`
}

func handleWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { metrics.WebhookDuration.Observe(time.Since(start).Seconds()) }()

		logger := deps.Logger.With("request_id", requestID(r))

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			metrics.WebhookRequests.WithLabelValues("malformed").Inc()
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		if err := deps.Auth.VerifySignature(body, r.Header.Get(webhook.SignatureHeader)); err != nil {
			rejectAuth(w, logger, err)
			return
		}

		env, err := webhook.ParseEnvelope(body)
		if err != nil {
			rejectMalformed(w, logger, err)
			return
		}

		if err := deps.Auth.CheckTimestamp(int64(env.WebhookTimestamp)); err != nil {
			rejectAuth(w, logger, err)
			return
		}

		if env.Type != webhook.TypeProjectUpdate || !env.Action.Processable() {
			logger.Info("ignoring delivery", "type", env.Type, "action", env.Action)
			metrics.WebhookRequests.WithLabelValues("ignored").Inc()
			writeJSON(w, http.StatusOK, WebhookResponse{Status: "ignored"})
			return
		}

		ev, err := webhook.ParseEvent(env)
		if err != nil {
			rejectMalformed(w, logger, err)
			return
		}

		res, err := deps.Processor.Process(r.Context(), ev)
		if err != nil {
			logger.Error("processing delivery failed", "update_id", ev.UpdateID, "action", ev.Action, "error", err)
			metrics.WebhookRequests.WithLabelValues("error").Inc()
			httpError(w, http.StatusInternalServerError, "server_error", "processing update %s failed", ev.UpdateID)
			return
		}

		result := "processed"
		if res.Outcome == dedup.Skip {
			result = "skipped"
		}
		metrics.WebhookRequests.WithLabelValues(result).Inc()
		writeJSON(w, http.StatusOK, WebhookResponse{
			Status:   string(res.Outcome),
			Reason:   string(res.Reason),
			UpdateID: ev.UpdateID,
			PageID:   res.PageID,
		})
	}
}

func rejectAuth(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Warn("rejected delivery", "error", err)
	metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
	httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
}

func rejectMalformed(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Warn("malformed delivery", "error", err)
	metrics.WebhookRequests.WithLabelValues("malformed").Inc()
	var mpe *webhook.MalformedPayloadError
	if errors.As(err, &mpe) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", mpe.Reason)
		return
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
}

func handleRollup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		anchor, err := anchorFor(r.URL.Query().Get("date"), deps.Now())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		sum, err := deps.Rollup.Run(r.Context(), anchor)
		if err != nil {
			deps.Logger.Error("manual rollup failed", "request_id", requestID(r),
				"anchor", period.Format(anchor), "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "rollup for %s failed", period.Format(anchor))
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// anchorFor resolves an optional YYYY-MM-DD date to the anchor of the period
// containing it. An empty date means the current period.
func anchorFor(date string, now time.Time) (time.Time, error) {
	if date == "" {
		return period.WeekEnding(now), nil
	}
	d, err := period.Parse(date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	return period.WeekEnding(d), nil
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
