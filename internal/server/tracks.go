package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmeta/internal/cache"
	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/shared"
)

// TrackCache is the part of [cache.MetadataCache] the HTTP layer uses.
type TrackCache interface {
	Resolve(ctx context.Context, ids []string, maxBatch int) (map[string]*models.TrackMetadata, error)
	Invalidate(id string)
	InvalidateAll()
	Stats() cache.Stats
}

// TrackStore is the part of the metadata repository the HTTP layer reads directly.
type TrackStore interface {
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	ListByAlbum(ctx context.Context, albumID string) ([]*models.TrackMetadata, error)
	ListByArtist(ctx context.Context, artistID string) ([]*models.TrackMetadata, error)
}

// TracksResponse is the body of track lookups.
type TracksResponse struct {
	Tracks  []*models.TrackMetadata `json:"tracks"`
	Missing []string                `json:"missing,omitempty"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Cache  cache.Stats `json:"cache"`
	Stored int         `json:"stored"`
}

// TrackHandler serves track lookups through the cache and album/artist lookups from the store.
type TrackHandler struct {
	cache    TrackCache
	store    TrackStore
	maxBatch int
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewTrackHandler creates a [TrackHandler]. maxBatch is passed to every Resolve call.
func NewTrackHandler(c TrackCache, s TrackStore, maxBatch int, logger *log.Logger) *TrackHandler {
	h := &TrackHandler{cache: c, store: s, maxBatch: maxBatch, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /tracks", h.listTracks)
	h.mux.HandleFunc("DELETE /tracks", h.invalidateAll)
	h.mux.HandleFunc("GET /tracks/{id}", h.getTrack)
	h.mux.HandleFunc("DELETE /tracks/{id}", h.deleteTrack)
	h.mux.HandleFunc("GET /albums/{id}/tracks", h.albumTracks)
	h.mux.HandleFunc("GET /artists/{id}/tracks", h.artistTracks)
	h.mux.HandleFunc("GET /stats", h.stats)
	return h
}

func (h *TrackHandler) Routes() []string {
	return []string{"/tracks", "/tracks/", "/albums/", "/artists/", "/stats"}
}

func (h *TrackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// listTracks handles GET /tracks?ids=a,b,c. Ids are answered in request order.
func (h *TrackHandler) listTracks(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query()["ids"])
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	found, err := h.cache.Resolve(r.Context(), ids, h.maxBatch)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := TracksResponse{Tracks: make([]*models.TrackMetadata, 0, len(found))}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if track := found[id]; track != nil {
			resp.Tracks = append(resp.Tracks, track)
		} else {
			resp.Missing = append(resp.Missing, id)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TrackHandler) getTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := h.cache.Resolve(r.Context(), []string{id}, h.maxBatch)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	track := found[id]
	if track == nil {
		writeError(w, http.StatusNotFound, shared.ErrTrackNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// deleteTrack drops the in-memory entry, and the stored row too with ?store=true.
func (h *TrackHandler) deleteTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.URL.Query().Get("store") == "true" {
		if err := h.store.Delete(r.Context(), id); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.cache.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackHandler) invalidateAll(w http.ResponseWriter, r *http.Request) {
	h.cache.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackHandler) albumTracks(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.store.ListByAlbum)
}

func (h *TrackHandler) artistTracks(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.store.ListByArtist)
}

func (h *TrackHandler) list(w http.ResponseWriter, r *http.Request, lookup func(context.Context, string) ([]*models.TrackMetadata, error)) {
	tracks, err := lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []*models.TrackMetadata{}
	}
	writeJSON(w, http.StatusOK, TracksResponse{Tracks: tracks})
}

func (h *TrackHandler) stats(w http.ResponseWriter, r *http.Request) {
	stored, err := h.store.Count(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Cache: h.cache.Stats(), Stored: stored})
}

func (h *TrackHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request", RequestIDFrom(r.Context()), "error", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAPIRequest), errors.Is(err, shared.ErrAuthFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// splitIDs flattens repeated and comma-separated id parameters.
func splitIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// HealthHandler reports 200 while check succeeds and 503 otherwise.
func HealthHandler(check func(context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var _ Handler = (*TrackHandler)(nil)
