// Package mediaengine is the pion/webrtc-backed reference implementation
// of ports.Engine: the only piece of the system that speaks actual RTP,
// RTCP and ICE. Everything above this package (the room/peer/scheduler
// logic in internal/core/services) depends only on the ports.Engine
// interface and never imports pion directly, mirroring the boundary
// internal/infrastructure/webrtc/sfu.go drew in the source material, just
// moved one level up from raw PeerConnections to mediasoup-style
// worker/router/transport objects.
package mediaengine

import (
	"context"
	"fmt"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Engine implements ports.Engine by spawning Workers, each owning its own
// pion webrtc.API configured to listen on one UDP port range.
type Engine struct {
	iceServers []webrtc.ICEServer
	portMin    uint16
	portMax    uint16
	logger     *zap.SugaredLogger
}

func NewEngine(iceServers []webrtc.ICEServer, portMin, portMax uint16, logger *zap.SugaredLogger) *Engine {
	return &Engine{iceServers: iceServers, portMin: portMin, portMax: portMax, logger: logger}
}

func (e *Engine) CreateWorker(ctx context.Context, opts ports.WorkerOptions) (ports.Worker, error) {
	settingEngine := webrtc.SettingEngine{}
	if e.portMin != 0 && e.portMax != 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(e.portMin, e.portMax); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine), webrtc.WithMediaEngine(mediaEngine))

	id := domain.WorkerID(utils.GenerateID("worker"))
	w := &Worker{
		id:         id,
		port:       opts.Port,
		api:        api,
		iceServers: e.iceServers,
		routers:    make(map[domain.RouterID]*Router),
		logger:     e.logger.With("worker_id", id, "port", opts.Port),
	}
	return w, nil
}

// Worker owns one pion API instance (and therefore one listening port
// range) and the routers built on top of it.
type Worker struct {
	mu      sync.Mutex
	id      domain.WorkerID
	port    int
	api     *webrtc.API
	iceServers []webrtc.ICEServer
	routers map[domain.RouterID]*Router

	died     bool
	onDied   func(error)
	logger   *zap.SugaredLogger
}

func (w *Worker) ID() domain.WorkerID { return w.id }

func (w *Worker) CreateRouter(ctx context.Context, opts ports.RouterOptions) (ports.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.died {
		return nil, fmt.Errorf("worker %s is dead", w.id)
	}

	r := newRouter(w, opts.MediaCodecs)
	w.routers[r.id] = r
	return r, nil
}

func (w *Worker) CreateWebRTCServer(ctx context.Context, opts ports.WebRTCServerOptions) (ports.WebRTCServer, error) {
	return &WebRTCServer{id: domain.WebRTCServerID(utils.GenerateID("webrtcserver"))}, nil
}

func (w *Worker) OnDied(f func(error)) {
	w.mu.Lock()
	w.onDied = f
	w.mu.Unlock()
}

// Close tears the worker down: every router it owns is closed too, which
// in turn cascades into every room built on it (spec.md §4.8).
func (w *Worker) Close() {
	w.mu.Lock()
	if w.died {
		w.mu.Unlock()
		return
	}
	w.died = true
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.mu.Unlock()

	for _, r := range routers {
		r.Close()
	}
}

// WebRTCServer groups transports under one conceptual listening socket
// set (spec.md §1 ADD). The reference engine lets pion bind ephemeral
// ports per-transport, so this is a label-only grouping used solely to
// give the room something to call OnClose on.
type WebRTCServer struct {
	mu       sync.Mutex
	id       domain.WebRTCServerID
	closed   bool
	onClose  func()
}

func (s *WebRTCServer) ID() domain.WebRTCServerID { return s.id }
func (s *WebRTCServer) OnClose(f func())          { s.mu.Lock(); s.onClose = f; s.mu.Unlock() }
func (s *WebRTCServer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cb := s.onClose
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}
