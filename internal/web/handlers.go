package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/stepramp/internal/config"
	"github.com/cjeanneret/stepramp/internal/debug"
	"github.com/cjeanneret/stepramp/internal/logic/motion"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Mover is the motion surface driven by the HTTP handlers.
type Mover interface {
	MoveTo(ctx context.Context, target int32) error
	MoveBy(ctx context.Context, delta int32) error
	Decelerate()
	Stop()
	Busy() bool
	Status() motion.Status
}

// AngleConverter turns degrees into pulses.
type AngleConverter interface {
	StepsFromAngle(angleDegrees float64) int32
}

// MoveRequest is the body of POST /move. Exactly one of Target (pulses)
// and Degrees must be set. Relative moves are taken from the current position.
type MoveRequest struct {
	Target   *int32   `json:"target,omitempty"`
	Degrees  *float64 `json:"degrees,omitempty"`
	Relative bool     `json:"relative"`
}

// ValidateMoveRequest checks a decoded move request.
func ValidateMoveRequest(req MoveRequest) error {
	switch {
	case req.Target == nil && req.Degrees == nil:
		return errors.New("one of target or degrees is required")
	case req.Target != nil && req.Degrees != nil:
		return errors.New("target and degrees are mutually exclusive")
	}
	if req.Degrees != nil {
		d := *req.Degrees
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return errors.New("degrees must be a finite number")
		}
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Mover       Mover
	Angles      AngleConverter
	Config      *config.Config
	staticFS    fs.FS

	// ctx bounds background moves; cancelling it decelerates them.
	ctx       context.Context
	runningMu sync.Mutex
	running   bool
	done      chan struct{} // closed when the last background move ends
}

// NewHandlers creates handlers with the given dependencies.
// If mover is nil, POST /move will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, mover Mover, angles AngleConverter, cfg *config.Config, staticFS fs.FS) *Handlers {
	done := make(chan struct{})
	close(done)
	return &Handlers{
		Broadcaster: broadcaster,
		Mover:       mover,
		Angles:      angles,
		Config:      cfg,
		staticFS:    staticFS,
		ctx:         context.Background(),
		done:        done,
	}
}

// HandleConfig returns the active configuration as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if h.Config == nil {
		http.Error(w, "no configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.Config)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleMove handles POST /move to start a move in the background.
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MoveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateMoveRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Degrees != nil && h.Angles == nil {
		http.Error(w, "degrees not supported", http.StatusBadRequest)
		return
	}

	if h.Mover == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}

	var steps int32
	if req.Target != nil {
		steps = *req.Target
	} else {
		steps = h.Angles.StepsFromAngle(*req.Degrees)
	}

	h.runningMu.Lock()
	if h.running || h.Mover.Busy() {
		h.runningMu.Unlock()
		http.Error(w, "move already in progress", http.StatusConflict)
		return
	}
	h.running = true
	done := make(chan struct{})
	h.done = done
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
			close(done)
		}()

		var err error
		if req.Relative {
			err = h.Mover.MoveBy(h.ctx, steps)
		} else {
			err = h.Mover.MoveTo(h.ctx, steps)
		}
		switch {
		case err == nil:
			h.Broadcaster.Broadcast("info", fmt.Sprintf("Move complete at %d", h.Mover.Status().Position))
		case errors.Is(err, context.Canceled):
			h.Broadcaster.Broadcast("info", "Move cancelled")
		default:
			h.Broadcaster.Broadcast("error", "Move failed: "+err.Error())
			debug.Error(fmt.Errorf("move failed: %w", err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "started",
		"steps":    steps,
		"relative": req.Relative,
	})
}

// HandleDecelerate handles POST /decelerate.
func (h *Handlers) HandleDecelerate(w http.ResponseWriter, r *http.Request) {
	if h.Mover == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	h.Mover.Decelerate()
	writeJSON(w, http.StatusAccepted, h.Mover.Status())
}

// HandleStop handles POST /stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if h.Mover == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	h.Mover.Stop()
	writeJSON(w, http.StatusOK, h.Mover.Status())
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Mover == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Mover.Status())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// Wait blocks until the running background move, if any, returns.
func (h *Handlers) Wait() {
	h.runningMu.Lock()
	done := h.done
	h.runningMu.Unlock()
	<-done
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
