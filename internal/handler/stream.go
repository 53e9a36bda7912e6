package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/livepay/internal/broadcast"
	"github.com/josh-kwaku/livepay/internal/domain"
	"github.com/josh-kwaku/livepay/internal/logging"
)

const sseWriteTimeout = 10 * time.Second

type subscriber interface {
	Subscribe(ctx context.Context, sink broadcast.Sink) (*broadcast.Subscription, error)
}

type StreamHandler struct {
	broadcaster subscriber
}

func NewStreamHandler(b subscriber) *StreamHandler {
	return &StreamHandler{broadcaster: b}
}

// Stream holds the request open as an event stream until the client goes
// away or the broadcaster drops the subscription.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	rc := http.NewResponseController(w)

	// The server-wide write timeout would cut long-lived streams.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("failed to clear stream write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub, err := h.broadcaster.Subscribe(r.Context(), &sseSink{w: w, rc: rc})
	if errors.Is(err, domain.ErrBroadcasterClosed) {
		RespondDomainError(w, err)
		return
	}
	if err != nil {
		// The acknowledgement may already be on the wire; nothing more to send.
		log.Warn("stream subscription failed", "error", err)
		return
	}

	<-sub.Done()
}

// sseSink frames events as text/event-stream.
type sseSink struct {
	w  io.Writer
	rc *http.ResponseController
}

func (s *sseSink) WriteEvent(ev broadcast.Event) error {
	s.armDeadline()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) WriteKeepAlive() error {
	s.armDeadline()
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// armDeadline bounds a single write so a peer that stopped reading cannot
// pin the delivery goroutine.
func (s *sseSink) armDeadline() {
	_ = s.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
}
