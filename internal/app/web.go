// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/config"
	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/pipeline"
	"github.com/relabs-tech/inertial_replay/internal/raster"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const snapshotInterval = 250 * time.Millisecond

// Snapshot is the live state pushed to websocket clients.
type Snapshot struct {
	RunID       string           `json:"run_id"`
	Timestamp   float64          `json:"timestamp"`
	Pose        orientation.Pose `json:"pose"`
	HavePose    bool             `json:"have_pose"`
	Stats       pipeline.Stats   `json:"stats"`
	Done        bool             `json:"done"`
	Spectrogram string           `json:"spectrogram,omitempty"` // base64 PNG
}

// Server replays a recording in the background and serves its state.
type Server struct {
	mu       sync.RWMutex
	runID    string
	p        *pipeline.Pipeline
	pose     orientation.Pose
	havePose bool
	last     float64
	done     bool
	trace    Trace
}

func NewServer(pc pipeline.Config, params pipeline.Params) (*Server, error) {
	p, err := pipeline.New(pc, params)
	if err != nil {
		return nil, err
	}
	return &Server{runID: uuid.NewString(), p: p}, nil
}

// Replay feeds events to the pipeline, sleeping between them so that
// recording time advances speed times faster than wall time. Speed 0 does
// not sleep.
func (s *Server) Replay(ctx context.Context, events []event.Event, speed float64) error {
	defer func() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
	}()

	var timer *time.Timer
	for i, ev := range events {
		if speed > 0 && i > 0 {
			if d := time.Duration((ev.Timestamp - events[i-1].Timestamp) / speed * float64(time.Second)); d > 0 {
				if timer == nil {
					timer = time.NewTimer(d)
					defer timer.Stop()
				} else {
					timer.Reset(d)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		out, err := s.p.Update(ev)
		s.last = ev.Timestamp
		for _, d := range out {
			switch d.Source {
			case event.Orientation:
				q := orientation.Quaternion{
					W: float32(d.Values[0]), X: float32(d.Values[1]),
					Y: float32(d.Values[2]), Z: float32(d.Values[3]),
				}
				s.pose = orientation.PoseFromQuaternion(q)
				s.havePose = true
			case event.Euler:
				s.trace.Add(d)
			}
		}
		s.mu.Unlock()

		if err != nil {
			log.WithField("timestamp", ev.Timestamp).Debugf("web: event dropped: %v", err)
		}
	}
	return nil
}

// Snapshot copies the current state. withImage adds the spectrogram.
func (s *Server) Snapshot(withImage bool) (Snapshot, error) {
	s.mu.RLock()
	snap := Snapshot{
		RunID:     s.runID,
		Timestamp: s.last,
		Pose:      s.pose,
		HavePose:  s.havePose,
		Stats:     s.p.Stats(),
		Done:      s.done,
	}
	var img *raster.ImageBuffer
	if withImage {
		img = s.p.Raster()
	}
	if img == nil {
		s.mu.RUnlock()
		return snap, nil
	}
	frame := img.Chronological()
	s.mu.RUnlock()

	b64, err := raster.Base64PNG(frame)
	if err != nil {
		return snap, err
	}
	snap.Spectrogram = b64
	return snap, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// JSON API endpoint: latest pose
	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		pose, havePose := s.pose, s.havePose
		s.mu.RUnlock()

		if !havePose {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, pose)
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		snap, _ := s.Snapshot(false)
		writeJSON(w, snap)
	})

	mux.HandleFunc("/api/spectrogram.png", s.handleSpectrogram)

	mux.HandleFunc("/api/trace.png", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.trace.Len() == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := s.trace.WritePNG(w, "Orientation "+s.runID[:8]); err != nil {
			log.Warnf("web: trace render error: %v", err)
		}
	})

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexHTML)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("web: json encode error: %v", err)
	}
}

// handleSpectrogram serves the chronological raster. ?scale=N enlarges it.
func (s *Server) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	scale := 1
	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 16 {
			http.Error(w, "scale must be 1-16", http.StatusBadRequest)
			return
		}
		scale = n
	}

	s.mu.RLock()
	buf := s.p.Raster()
	if buf == nil {
		s.mu.RUnlock()
		http.Error(w, "spectrogram disabled", http.StatusNotFound)
		return
	}
	frame := buf.Chronological()
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "image/png")
	if err := raster.EncodePNG(w, raster.Scale(frame, scale)); err != nil {
		log.Warnf("web: %v", err)
	}
}

// handleWS pushes a Snapshot every snapshotInterval until the client goes
// away. Incoming messages are ignored.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		snap, err := s.Snapshot(true)
		if err != nil {
			log.Warnf("web: snapshot error: %v", err)
		}
		if err := conn.WriteJSON(snap); err != nil {
			log.Debugf("web: websocket write error: %v", err)
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

type WebOptions struct {
	Input      string
	Window     recording.Window
	ParamsFile string
	Addr       string // defaults to :WEB_SERVER_PORT
}

// RunWeb serves a live replay until ctx is cancelled.
func RunWeb(ctx context.Context, cfg *config.Config, opts WebOptions) error {
	params, err := loadParams(opts.ParamsFile)
	if err != nil {
		return err
	}
	pc, err := cfg.Pipeline()
	if err != nil {
		return err
	}
	events, _, err := recording.ReadFile(opts.Input, cfg.SourceMap(), opts.Window)
	if err != nil {
		return err
	}
	srv, err := NewServer(pc, params)
	if err != nil {
		return err
	}

	addr := opts.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.WebServerPort)
	}
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := srv.Replay(ctx, events, cfg.WebReplaySpeed); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("web: replay stopped: %v", err)
			return
		}
		log.WithField("run", srv.runID).Info("web: replay finished")
	}()

	listenErr := make(chan error, 1)
	go func() {
		log.Infof("web server listening on %s", addr)
		listenErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return httpSrv.Shutdown(shutdownCtx)
}

const indexHTML = `<!doctype html>
<html>
<head><title>inertial replay</title></head>
<body style="background:#111;color:#eee;font-family:monospace">
<pre id="pose">waiting...</pre>
<img id="spectrogram" style="image-rendering:pixelated;width:100%">
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (m) => {
  const s = JSON.parse(m.data);
  document.getElementById("pose").textContent =
    "t=" + s.timestamp.toFixed(3) + "  roll=" + s.pose.roll.toFixed(2) +
    "  pitch=" + s.pose.pitch.toFixed(2) + "  yaw=" + s.pose.yaw.toFixed(2) +
    (s.done ? "  (done)" : "");
  if (s.spectrogram) document.getElementById("spectrogram").src = "data:image/png;base64," + s.spectrogram;
};
</script>
</body>
</html>
`
