package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Connector is the synchronization engine behind the webhook endpoints.
type Connector interface {
	HandleIssueUpdated(ctx context.Context, issueID int) error
	HandleInboundMessage(ctx context.Context, msg models.InboundMessage) error
}

type Handler struct {
	connector Connector
}

func New(connector Connector) *Handler {
	return &Handler{connector: connector}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/webhook/redmine", h.redmineWebhook)
	r.Post("/webhook/email", h.emailWebhook)

	return r
}

type redmineWebhookRequest struct {
	Issue *struct {
		ID int `json:"id"`
	} `json:"issue"`
}

type emailWebhookRequest struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// redmineWebhook receives Redmine's update callback and notifies the
// requester immediately, independent of the poll cycle.
func (h *Handler) redmineWebhook(w http.ResponseWriter, r *http.Request) {
	var req redmineWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Issue == nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.connector.HandleIssueUpdated(r.Context(), req.Issue.ID); err != nil {
		logging.Log.Errorf("Error in Redmine webhook for issue #%d: %v", req.Issue.ID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(w)
}

// emailWebhook receives an already-parsed message from an external mail
// relay and runs it through the same resolution path as the inbox poll.
func (h *Handler) emailWebhook(w http.ResponseWriter, r *http.Request) {
	var req emailWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.From == "" || req.Subject == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg := models.InboundMessage{
		From:     req.From,
		Subject:  req.Subject,
		BodyText: req.Body,
	}

	if err := h.connector.HandleInboundMessage(r.Context(), msg); err != nil {
		logging.Log.Errorf("Error in e-mail webhook from %s: %v", req.From, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(w)
}

// requestLogger emits one access-log line per request through the shared
// JSON logger, so webhook traffic lands in the same stream as the poll
// loops.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logging.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Info("Request handled")
	})
}

func writeSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
