package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/app"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/httpjson"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type WorldsHandler struct {
	worlds     ports.WorldRepository
	thumbnails ThumbnailOpener
	policy     domain.StalenessPolicy
	now        func() time.Time
}

func NewWorldsHandler(worlds ports.WorldRepository, thumbnails ThumbnailOpener, policy domain.StalenessPolicy) *WorldsHandler {
	return &WorldsHandler{worlds: worlds, thumbnails: thumbnails, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

func (h *WorldsHandler) Routes(r chi.Router) {
	r.Route("/worlds", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/thumbnail", h.thumbnail)
	})
}

// WorldDTO expose l'enregistrement avec la décision de fraîcheur courante.
type WorldDTO struct {
	domain.World
	Freshness domain.Freshness `json:"freshness"`
}

func (h *WorldsHandler) toDTO(w domain.World) WorldDTO {
	return WorldDTO{World: w, Freshness: h.policy.DecideWorld(w, h.now())}
}

func (h *WorldsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	worlds, err := h.worlds.List(r.Context(), limit)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]WorldDTO, 0, len(worlds))
	for _, wr := range worlds {
		out = append(out, h.toDTO(wr))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *WorldsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := worldID(w, r)
	if !ok {
		return
	}
	world, err := h.worlds.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, h.toDTO(world))
}

func (h *WorldsHandler) thumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := worldID(w, r)
	if !ok {
		return
	}
	if h.thumbnails == nil {
		httpjson.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	f, err := h.thumbnails.Open(id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	var modTime time.Time
	if fi, err := f.Stat(); err == nil {
		modTime = fi.ModTime()
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, id+".jpg", modTime, f)
}

// worldID accepte un id brut ou une URL de world et renvoie la forme canonique.
func worldID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := app.ParseWorldID(chi.URLParam(r, "id"))
	if err != nil {
		var ce *app.CodedError
		if errors.As(err, &ce) {
			httpjson.WriteCodedError(w, http.StatusBadRequest, ce.Code, ce.Message)
			return "", false
		}
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
