package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/app"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/httpjson"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const maxRunBody = 4 << 20

type RunsHandler struct {
	base context.Context
	runs RunController
}

func NewRunsHandler(base context.Context, runs RunController) *RunsHandler {
	return &RunsHandler{base: base, runs: runs}
}

func (h *RunsHandler) Routes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
	})
}

func (h *RunsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.StartRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRunBody)).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}

	run, err := h.runs.Start(r.Context(), h.base, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmptyRun):
			httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ports.ErrConflict):
			httpjson.WriteError(w, http.StatusConflict, "a run is already in progress")
		default:
			httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	httpjson.Write(w, http.StatusAccepted, run)
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, runs)
}

func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, run)
}

// cancel: le run s'arrête avant l'item suivant, l'état final arrive via GET ou SSE.
func (h *RunsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.runs.Cancel(id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "no active run with this id")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancel requested"})
}
