package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/service"
)

const DefaultKeepAlive = 15 * time.Second

type EventSource interface {
	Subscribe(jobID string) *service.Subscription
}

// SSEHandler streams job notifications as server-sent "job" events.
type SSEHandler struct {
	events    EventSource
	jobs      JobService
	keepAlive time.Duration
}

func NewSSEHandler(events EventSource, jobs JobService, keepAlive time.Duration) *SSEHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &SSEHandler{
		events:    events,
		jobs:      jobs,
		keepAlive: keepAlive,
	}
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendNotification(w http.ResponseWriter, n service.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	sseWrite(w, "job", string(data))
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// JobEvents streams one job. The current snapshot is sent first; once the
// job is terminal the stream stays open idle until the client leaves, so
// EventSource does not reconnect in a loop.
func (h *SSEHandler) JobEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		// Subscribe before reading the snapshot so no update falls in between.
		sub := h.events.Subscribe(id)
		defer sub.Close()

		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		startStream(w)
		sendNotification(w, service.NotificationFor(job))
		if job.State.IsTerminal() {
			waitForClose(r.Context(), sub)
			return
		}

		h.stream(w, r, sub, true)
	}
}

// AllEvents streams notifications for every job.
func (h *SSEHandler) AllEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := h.events.Subscribe(service.AllJobs)
		defer sub.Close()

		startStream(w)
		h.stream(w, r, sub, false)
	}
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, sub *service.Subscription, stopAtTerminal bool) {
	ctx := r.Context()
	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			sendKeepAlive(w)
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			sendNotification(w, n)
			if stopAtTerminal && n.State.IsTerminal() {
				waitForClose(ctx, sub)
				return
			}
		}
	}
}

// waitForClose idles after the final event until the client hangs up or
// the subscription is closed at shutdown.
func waitForClose(ctx context.Context, sub *service.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
		}
	}
}
