package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siloamhealth/siloam-auth/pkg/idx"
)

// Emitter forwards audit events to the structured log and any configured
// sinks from a single background goroutine. Emit never blocks the caller's
// control flow and never returns an error; sink failures are swallowed and
// self-logged at error level.
type Emitter struct {
	log   *slog.Logger
	sinks []Sink

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// NewEmitter starts the background dispatch goroutine. Buffer sizes at or
// below zero fall back to 1.
func NewEmitter(log *slog.Logger, buffer int, sinks ...Sink) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1
	}

	e := &Emitter{
		log:   log,
		sinks: sinks,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
		Now:   time.Now,
	}

	e.wg.Add(1)
	go e.run()

	return e
}

// Emit queues an event for dispatch. The payload is sanitized and the ID and
// timestamp stamped here so callers can hand over raw context. Events are
// dropped, and counted, rather than ever blocking a login path.
func (e *Emitter) Emit(event Event) {
	if e == nil {
		return
	}

	event.Payload = Sanitize(event.Payload)
	if event.ID == "" {
		event.ID = idx.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.Now().UTC()
	}

	select {
	case e.ch <- event:
	case <-e.done:
	default:
		e.dropped.Add(1)
	}
}

// Close drains pending events and stops the dispatch goroutine.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}

// Dropped returns the number of events lost to a full buffer.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for {
		select {
		case event := <-e.ch:
			e.dispatch(event)
		case <-e.done:
			for {
				select {
				case event := <-e.ch:
					e.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) dispatch(event Event) {
	attrs := []any{
		"audit_id", event.ID,
		"action", event.Action,
		"resource", event.Resource,
		"account_id", event.AccountID,
		"email", event.Email,
		"ip", event.IPAddress,
		"success", event.Success,
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, "error_message", event.ErrorMessage)
	}

	if event.Success {
		e.log.Info("audit_event", attrs...)
	} else {
		e.log.Warn("audit_event", attrs...)
	}

	// Security-sensitive outcomes additionally surface on the alert channel.
	if event.SecuritySensitive() {
		e.log.Warn("security_alert",
			"audit_id", event.ID,
			"action", event.Action,
			"email", event.Email,
			"ip", event.IPAddress,
			"status_code", event.StatusCode,
		)
	}

	for _, sink := range e.sinks {
		if err := sink.Write(context.Background(), event); err != nil {
			e.log.Error("audit sink write failed", "audit_id", event.ID, "err", err)
		}
	}
}
