// Package api exposes the delivery pipeline over HTTP: schedule, cancel,
// list, preview, and immediate send, mirroring the editor's API surface.
// Handlers stay thin; all business rules live in the service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/mailblocks/internal/service"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/mailer"
)

// Handler serves the HTTP API.
type Handler struct {
	svc *service.Service
	log *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(svc *service.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{svc: svc, log: log}
}

// Router builds the chi router with all API routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/schedule", h.schedule)
		r.Post("/cancel", h.cancel)
		r.Get("/schedules", h.list)
		r.Post("/preview", h.preview)
		r.Post("/send", h.send)
	})
	return r
}

type scheduleRequest struct {
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Data       compiler.Document `json:"data"`
	TargetTime time.Time         `json:"targetTime"`
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	rec, err := h.svc.Schedule(r.Context(), service.ScheduleInput{
		Recipient:  req.Recipient,
		Subject:    req.Subject,
		Document:   req.Data,
		TargetTime: req.TargetTime,
	})
	if err != nil {
		h.respondError(w, r, statusFor(err), err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"scheduleId":         rec.ScheduleID,
		"orchestratorHandle": rec.Handle,
	})
}

type cancelRequest struct {
	ScheduleID string `json:"scheduleId"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	rec, err := h.svc.Cancel(r.Context(), req.ScheduleID)
	if err != nil {
		h.respondError(w, r, statusFor(err), err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"scheduleId": rec.ScheduleID,
		"status":     rec.Status,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter *store.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.Status(raw)
		if !status.Valid() {
			h.respondError(w, r, http.StatusBadRequest, errors.New("unknown status filter: "+raw))
			return
		}
		filter = &status
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, statusFor(err), err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"schedules": records,
	})
}

type previewRequest struct {
	Subject string            `json:"subject"`
	Data    compiler.Document `json:"data"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	artifact := h.svc.Preview(req.Data, req.Subject)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(artifact.HTML))
}

type sendRequest struct {
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Data      compiler.Document `json:"data"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	messageID, err := h.svc.SendNow(r.Context(), service.SendInput{
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Document:  req.Data,
	})
	if err != nil {
		h.respondError(w, r, statusFor(err), err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      messageID,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRecipient),
		errors.Is(err, service.ErrEmptySubject),
		errors.Is(err, service.ErrEmptyDocument),
		errors.Is(err, service.ErrPastTargetTime):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, store.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, mailer.ErrSendFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	h.respondJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
