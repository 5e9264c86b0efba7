package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"vigilstream/internal/vigil/adapters"
	"vigilstream/internal/vigil/auth"
	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/service"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

const maxRequestBody = 1 << 20

type mediaUseCases interface {
	MediaService
	Upload(ctx context.Context, caller auth.Identity, req service.UploadRequest) (*domain.MediaObject, error)
	StreamURL(ctx context.Context, caller auth.Identity, id string) (string, error)
	Delete(ctx context.Context, caller auth.Identity, id string) error
	CancelProcessing(ctx context.Context, caller auth.Identity, id string) error
	ChangeRole(ctx context.Context, caller auth.Identity, userID, role string) (domain.User, error)
	ListUsers(ctx context.Context, caller auth.Identity) ([]domain.User, error)
}

type Handler struct {
	media     mediaUseCases
	bus       adapters.Unsubscriber
	keepAlive time.Duration
	lifetime  context.Context
	logger    *logger.Logger
}

// NewHandler wires the HTTP handlers to the media service. Open event
// streams end when lifetime is cancelled.
func NewHandler(lifetime context.Context, media mediaUseCases, bus adapters.Unsubscriber, keepAlive time.Duration) *Handler {
	return &Handler{
		media:     media,
		bus:       bus,
		keepAlive: keepAlive,
		lifetime:  lifetime,
		logger:    logger.WithField("component", "http-api"),
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &n, Data: items})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	writeJSON(w, code, envelope{Success: false, Message: err.Error()})
}

// identityMiddleware reads the caller set by the trusted gateway. Requests
// without a user id continue anonymously and are rejected by the service.
func (h *Handler) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := auth.NewIdentity(userID, r.Header.Get("X-User-Role"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func requestCaller(r *http.Request) auth.Identity {
	return caller(r.Context())
}

// ListVideos handles GET /api/videos.
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		State:    domain.LifecycleState(q.Get("state")),
		Category: q.Get("category"),
		OwnerID:  q.Get("ownerId"),
	}
	if raw := q.Get("safeOnly"); raw != "" {
		safeOnly, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, errors.ErrInvalidArgument)
			return
		}
		filter.SafeOnly = safeOnly
	}

	objs, err := h.media.List(r.Context(), requestCaller(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, objs)
}

// UploadVideo handles POST /api/videos.
func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	var req service.UploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.writeError(w, r, stderrors.Join(errors.ErrInvalidArgument, err))
		return
	}

	obj, err := h.media.Upload(r.Context(), requestCaller(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, obj)
}

// GetVideo handles GET /api/videos/{id}.
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	obj, err := h.media.Get(r.Context(), requestCaller(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, obj)
}

// DeleteVideo handles DELETE /api/videos/{id}.
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.media.Delete(r.Context(), requestCaller(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Video deleted"})
}

// StreamVideo handles GET /api/videos/{id}/stream by redirecting to the
// playback location.
func (h *Handler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	url, err := h.media.StreamURL(r.Context(), requestCaller(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// CancelVideo handles POST /api/videos/{id}/cancel.
func (h *Handler) CancelVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.media.CancelProcessing(r.Context(), requestCaller(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Message: "Processing cancelled"})
}

// VideoEvents handles GET /api/videos/{id}/events. The stream closes after
// the object's terminal event.
func (h *Handler) VideoEvents(w http.ResponseWriter, r *http.Request) {
	h.streamEvents(w, r, domain.ObjectTopic(mux.Vars(r)["id"]), true)
}

// Events handles GET /api/events: terminal events and deletions of every
// object.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.streamEvents(w, r, domain.GlobalTopic, false)
}

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, topic string, stopOnTerminal bool) {
	log := h.logger.WithFields("operation", "events", "topic", topic)

	sub, err := h.media.Watch(r.Context(), requestCaller(r), topic)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	stream, err := adapters.NewSSEStreamAdapter(w, r)
	if err != nil {
		h.bus.Unsubscribe(sub)
		h.writeError(w, r, err)
		return
	}

	err = adapters.Pump(h.lifetime, h.bus, sub, stream, adapters.PumpOptions{
		KeepAlive:      h.keepAlive,
		StopOnTerminal: stopOnTerminal,
	})
	if err != nil && !stderrors.Is(err, errors.ErrStreamCancelled) {
		log.Debug("event stream ended", "reason", err)
	}
}

type roleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles PUT /api/users/{id}/role.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.writeError(w, r, stderrors.Join(errors.ErrInvalidArgument, err))
		return
	}

	u, err := h.media.ChangeRole(r.Context(), requestCaller(r), mux.Vars(r)["id"], req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.media.ListUsers(r.Context(), requestCaller(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, users)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}
