package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tasklist/internal/logger"
	"tasklist/internal/manager"
	"tasklist/internal/models"
	"tasklist/internal/notifier"
	"tasklist/internal/storage"
)

const maxBodyBytes = 64 << 10

// TaskHandler переводит HTTP-запросы в вызовы списка задач сессии
type TaskHandler struct {
	sessions      storage.Storage
	notifier      *notifier.Notifier
	sessionHeader string
	keepAlive     time.Duration
}

// sessionKey: заголовок, затем ?session= (EventSource не умеет заголовки), иначе "default"
func (h *TaskHandler) sessionKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(h.sessionHeader)); key != "" {
		return key
	}
	if key := strings.TrimSpace(r.URL.Query().Get("session")); key != "" {
		return key
	}
	return defaultSession
}

func (h *TaskHandler) store(r *http.Request) (string, *manager.TaskListStore) {
	key := h.sessionKey(r)
	return key, h.sessions.Get(key)
}

// respond публикует новый снимок подписчикам и отвечает им же
func (h *TaskHandler) respond(ctx context.Context, w http.ResponseWriter, session string, tasks models.TaskCollection) {
	if h.notifier != nil {
		h.notifier.Publish(context.WithoutCancel(ctx), session, tasks)
	}
	RespondWithJSON(w, http.StatusOK, tasks.Snapshot())
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	_, store := h.store(r)
	RespondWithJSON(w, http.StatusOK, store.Snapshot().Snapshot())
}

func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	_, store := h.store(r)
	RespondWithJSON(w, http.StatusOK, store.Snapshot().Stats())
}

func (h *TaskHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CreateTaskRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			WriteJSONError(w, http.StatusBadRequest, "Request body is empty")
			return
		}
		logger.Warn(ctx, "Failed to decode add task request body", "error", err.Error())
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, store := h.store(r)
	before := store.TotalCount()
	tasks := store.Add(req.Text)
	if tasks.Len() == before {
		logger.Debug(ctx, "Empty task text ignored", "session", session)
	}
	h.respond(ctx, w, session, tasks)
}

func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	session, store := h.store(r)
	h.respond(r.Context(), w, session, store.Toggle(chi.URLParam(r, "taskID")))
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	session, store := h.store(r)
	h.respond(r.Context(), w, session, store.Delete(chi.URLParam(r, "taskID")))
}

func (h *TaskHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	session, store := h.store(r)
	h.respond(r.Context(), w, session, store.ClearCompleted())
}

// SubscribeToTasks - GET /api/tasks/events, поток снимков в формате SSE
func (h *TaskHandler) SubscribeToTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok || h.notifier == nil {
		WriteJSONError(w, http.StatusNotImplemented, "Streaming is not supported")
		return
	}

	session := h.sessionKey(r)
	ctx = logger.WithContext(ctx, "session", session)

	// пока поток открыт, сессия не вытесняется
	store, release := h.sessions.Acquire(session)
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.notifier.Subscribe(session)
	defer h.notifier.Unsubscribe(session, ch)

	logger.Info(ctx, "SSE client subscribed")

	// первый кадр - текущее состояние, дальше только изменения.
	// Снимок берется после Subscribe и идет через тот же канал, что и публикации.
	h.notifier.Prime(ctx, session, ch, store.Snapshot())

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				logger.Warn(ctx, "Error writing to SSE client", "error", err.Error())
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			logger.Info(ctx, "SSE client disconnected")
			return
		}
	}
}
