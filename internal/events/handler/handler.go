package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certreg/internal/events"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/httputil"
)

const defaultLimit = 100

// Source is a readable event log.
type Source interface {
	List() []events.Envelope
	ListByType(eventType string) []events.Envelope
}

// Handler exposes the recent event log for operators.
type Handler struct {
	source Source
}

func New(source Source) *Handler {
	return &Handler{source: source}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.handleList)
}

type listResponse struct {
	Events []events.Envelope `json:"events"`
	Count  int               `json:"count"`
}

// handleList returns the newest events, oldest first. ?type= filters by event
// type and ?limit= caps the count.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	var envs []events.Envelope
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		envs = h.source.ListByType(eventType)
	} else {
		envs = h.source.List()
	}
	if len(envs) > limit {
		envs = envs[len(envs)-limit:]
	}
	if envs == nil {
		envs = []events.Envelope{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Events: envs, Count: len(envs)})
}
