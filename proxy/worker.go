package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"playlink/config"
	"playlink/message"
	"playlink/middleware"
	"playlink/pubsub"
	"playlink/registry"
	"playlink/server"
)

// Topics of the worker's remote operations and events.
const (
	TopicDiscover        = "discover"
	TopicDiscoverStatus  = "discover_status"
	TopicPair            = "pair"
	TopicPairStatus      = "pair_status"
	TopicDisconnect      = "disconnect"
	TopicUpdateCache     = "update_cache"
	TopicGetCache        = "get_cache"
	TopicMute            = "mute"
	TopicChangeVolume    = "change_volume_percent"
	TopicSetVolume       = "set_volume_percent"
	TopicShuffle         = "shuffle"
	TopicRepeat          = "repeat"
	TopicPlaybackControl = "playback_control"
	TopicPlayPath        = "play_path"
	TopicPlaySearch      = "play_search"
	TopicSearchType      = "search_type"
	TopicNowPlaying      = "now_playing"
	TopicGetImage        = "get_image"

	TopicStateChanged = "state_changed"
)

// Version is reported to the worker registry.
const Version = "0.2.0"

// ErrNotPaired is returned by operations that need a paired session before
// pairing has completed.
var ErrNotPaired = errors.New("proxy: not paired to a music-server core")

// Worker is the long-lived process half: it owns the music-server session,
// serves the skill's requests, and publishes state changes.
type Worker struct {
	cfg    *config.Worker
	dialer Dialer
	srv    *server.Server
	pub    *pubsub.Publisher
	reg    registry.Registry

	mu      sync.Mutex
	session Session
}

// NewWorker wires a worker from its configuration and a dialer for the
// external music-server SDK. Payload types are registered here, before any
// socket is opened. Pass a nil reg to skip discovery registration.
func NewWorker(cfg *config.Worker, dialer Dialer, reg registry.Registry) *Worker {
	RegisterPayloads()

	w := &Worker{
		cfg:    cfg,
		dialer: dialer,
		srv:    server.NewServer(),
		pub:    pubsub.NewPublisher(),
		reg:    reg,
	}

	w.srv.Use(middleware.Logging())
	if cfg.RateLimit > 0 {
		w.srv.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	w.srv.RegisterRPC(TopicDiscover, w.handleDiscover)
	w.srv.RegisterRPC(TopicDiscoverStatus, w.handleDiscoverStatus)
	w.srv.RegisterRPC(TopicPair, w.handlePair)
	w.srv.RegisterRPC(TopicPairStatus, w.handlePairStatus)
	w.srv.RegisterRPC(TopicDisconnect, w.handleDisconnect)
	w.srv.RegisterRPC(TopicUpdateCache, withSession(w, func(s Session, _ message.Payload) (message.Payload, error) {
		cache, err := s.UpdateCache()
		if err != nil {
			return nil, err
		}
		return &cache, nil
	}))
	w.srv.RegisterRPC(TopicGetCache, withSession(w, func(s Session, _ message.Payload) (message.Payload, error) {
		cache := s.Cache()
		return &cache, nil
	}))
	w.srv.RegisterRPC(TopicMute, sessionOp(w, func(s Session, req *MuteRequest) error {
		return s.Mute(req.OutputID, req.Mute)
	}))
	w.srv.RegisterRPC(TopicChangeVolume, sessionOp(w, func(s Session, req *VolumeRelativeChange) error {
		return s.ChangeVolumePercent(req.OutputID, req.RelativeValue)
	}))
	w.srv.RegisterRPC(TopicSetVolume, sessionOp(w, func(s Session, req *VolumeAbsoluteChange) error {
		return s.SetVolumePercent(req.OutputID, req.AbsoluteValue)
	}))
	w.srv.RegisterRPC(TopicShuffle, sessionOp(w, func(s Session, req *Shuffle) error {
		return s.Shuffle(req.ZoneOrOutputID, req.Shuffle)
	}))
	w.srv.RegisterRPC(TopicRepeat, sessionOp(w, func(s Session, req *Repeat) error {
		return s.Repeat(req.ZoneOrOutputID, req.Repeat)
	}))
	w.srv.RegisterRPC(TopicPlaybackControl, sessionOp(w, func(s Session, req *PlaybackControl) error {
		return s.PlaybackControl(req.ZoneOrOutputID, req.Control)
	}))
	w.srv.RegisterRPC(TopicPlayPath, sessionOp(w, func(s Session, req *PlayPath) error {
		return s.PlayPath(req.ZoneOrOutputID, req.Path, req.Action)
	}))
	w.srv.RegisterRPC(TopicPlaySearch, sessionOp(w, func(s Session, req *PlaySearch) error {
		return s.PlaySearch(req.ZoneOrOutputID, req.ItemKey, req.SessionKey)
	}))
	w.srv.RegisterRPC(TopicSearchType, withSession(w, func(s Session, p message.Payload) (message.Payload, error) {
		req, err := payloadAs[*SearchType](p)
		if err != nil {
			return nil, err
		}
		results, err := s.SearchType(req.ItemType, req.Query)
		if err != nil {
			return nil, err
		}
		return &SearchTypeResult{Results: results}, nil
	}))
	w.srv.RegisterRPC(TopicNowPlaying, withSession(w, func(s Session, p message.Payload) (message.Payload, error) {
		req, err := payloadAs[*NowPlayingRequest](p)
		if err != nil {
			return nil, err
		}
		np, err := s.NowPlaying(req.ZoneID)
		if err != nil {
			return nil, err
		}
		return &NowPlayingReply{NowPlaying: np}, nil
	}))
	w.srv.RegisterRPC(TopicGetImage, withSession(w, func(s Session, p message.Payload) (message.Payload, error) {
		req, err := payloadAs[*GetImageRequest](p)
		if err != nil {
			return nil, err
		}
		url, err := s.ImageURL(req.ImageKey)
		if err != nil {
			return nil, err
		}
		return &GetImageReply{URL: url}, nil
	}))

	return w
}

// Run starts the event publisher, registers the worker for discovery, and
// serves requests until Shutdown. It blocks.
func (w *Worker) Run() error {
	if err := w.pub.Listen(networkFor(w.cfg.EventAddr), trimUnix(w.cfg.EventAddr)); err != nil {
		return fmt.Errorf("proxy: event publisher: %w", err)
	}
	if w.reg != nil {
		instance := registry.WorkerInstance{
			Addr:      w.cfg.SockAddr,
			EventAddr: w.cfg.EventAddr,
			Version:   Version,
		}
		if err := w.reg.Register(w.cfg.WorkerName, instance, w.cfg.RegisterTTL); err != nil {
			return fmt.Errorf("proxy: register worker: %w", err)
		}
	}
	slog.Info("worker serving", "sock", w.cfg.SockAddr, "events", w.cfg.EventAddr)
	return w.srv.Serve(networkFor(w.cfg.SockAddr), trimUnix(w.cfg.SockAddr))
}

// Shutdown deregisters the worker, stops the publisher, and drains the
// server.
func (w *Worker) Shutdown(timeout time.Duration) error {
	if w.reg != nil {
		// Deregister first so the skill stops routing to this worker.
		if err := w.reg.Deregister(w.cfg.WorkerName, w.cfg.SockAddr); err != nil {
			slog.Warn("failed to deregister worker", "err", err)
		}
	}
	w.pub.Close()
	return w.srv.Shutdown(timeout)
}

func (w *Worker) handleDiscover(ctx context.Context, _ message.Payload) (message.Payload, error) {
	return nil, w.dialer.StartDiscovery()
}

func (w *Worker) handleDiscoverStatus(ctx context.Context, _ message.Payload) (message.Payload, error) {
	status := w.dialer.DiscoveryStatus()
	if status.Status == DiscoverDiscovered {
		slog.Info("discovered music-server core", "host", deref(status.Host), "port", derefInt(status.Port))
	}
	return &status, nil
}

func (w *Worker) handlePair(ctx context.Context, p message.Payload) (message.Payload, error) {
	settings, err := payloadAs[*ManualPairSettings](p)
	if err != nil {
		return nil, err
	}
	return nil, w.dialer.StartPairing(*settings)
}

func (w *Worker) handlePairStatus(ctx context.Context, _ message.Payload) (message.Payload, error) {
	status, session := w.dialer.PairingStatus()
	if status.Status == PairPaired && session != nil {
		w.adoptSession(session, status.Auth)
	}
	return &status, nil
}

func (w *Worker) handleDisconnect(ctx context.Context, _ message.Payload) (message.Payload, error) {
	w.mu.Lock()
	session := w.session
	w.session = nil
	w.mu.Unlock()
	if session == nil {
		return nil, ErrNotPaired
	}
	session.Disconnect()
	return nil, nil
}

// adoptSession installs a freshly paired session and hooks its state events
// into the event channel. Idempotent: pair_status is polled repeatedly and
// only the first PAIRED answer installs the session.
func (w *Worker) adoptSession(session Session, auth *AuthSettings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session != nil {
		return
	}
	w.session = session
	session.Subscribe(w.publishState)
	if auth != nil {
		slog.Info("paired to music-server core", "core", auth.CoreName, "core_id", auth.CoreID)
	}
}

// publishState fans a session state change out to subscribers. Best-effort:
// a publish failure is logged, never propagated into the session.
func (w *Worker) publishState(ev StateChanged) {
	if err := w.pub.Publish(TopicStateChanged, &ev); err != nil {
		slog.Warn("failed to publish state change", "event", ev.Event, "err", err)
	}
}

// withSession guards an operation that needs a paired session.
func withSession(w *Worker, fn func(Session, message.Payload) (message.Payload, error)) server.Handler {
	return func(ctx context.Context, p message.Payload) (message.Payload, error) {
		w.mu.Lock()
		session := w.session
		w.mu.Unlock()
		if session == nil {
			return nil, ErrNotPaired
		}
		return fn(session, p)
	}
}

// sessionOp adapts a typed, reply-less session operation into a handler.
func sessionOp[T message.Payload](w *Worker, fn func(Session, T) error) server.Handler {
	return withSession(w, func(s Session, p message.Payload) (message.Payload, error) {
		req, err := payloadAs[T](p)
		if err != nil {
			return nil, err
		}
		return nil, fn(s, req)
	})
}

// payloadAs asserts a request payload to its expected type. A mismatch is an
// application error reported back to the caller.
func payloadAs[T message.Payload](p message.Payload) (T, error) {
	req, ok := p.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("proxy: unexpected payload type %s", p.PayloadType())
	}
	return req, nil
}

// networkFor picks the socket family for an address: "host:port" means TCP,
// a "unix:" prefix or path means a local socket.
func networkFor(address string) string {
	if strings.HasPrefix(address, "unix:") || strings.ContainsRune(address, '/') {
		return "unix"
	}
	return "tcp"
}

func trimUnix(address string) string {
	return strings.TrimPrefix(address, "unix:")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
