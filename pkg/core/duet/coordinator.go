package duet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/live"
)

// FrameInterval is the video frame cadence (2 frames per second).
const FrameInterval = 500 * time.Millisecond

const rollbackTimeout = 5 * time.Second

// Role names one of the two sessions.
type Role int

const (
	RoleSpeaking Role = iota
	RoleFunction
)

func (r Role) String() string {
	switch r {
	case RoleSpeaking:
		return "speaking"
	case RoleFunction:
		return "function"
	default:
		return "unknown"
	}
}

// FrameSource returns the most recently captured video frame.
type FrameSource interface {
	LatestFrame() (live.Chunk, bool)
}

// Coordinator owns the speaking and function transports.
type Coordinator struct {
	speaking live.Transport
	function live.Transport
	logger   *slog.Logger

	// opMu serializes Connect and Disconnect.
	opMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	muted     bool
	configs   [2]live.Config
}

// NewCoordinator pushes both configurations to their transports.
func NewCoordinator(speaking, function live.Transport, speakingCfg, functionCfg live.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		speaking: speaking,
		function: function,
		logger:   logger,
	}
	c.Configure(RoleSpeaking, speakingCfg)
	c.Configure(RoleFunction, functionCfg)
	return c
}

func (c *Coordinator) Speaking() live.Transport { return c.speaking }

func (c *Coordinator) Function() live.Transport { return c.function }

// Configure replaces the config for role. It takes effect on the next Connect.
func (c *Coordinator) Configure(role Role, cfg live.Config) {
	c.mu.Lock()
	c.configs[role] = cfg.Clone()
	c.mu.Unlock()
	c.transport(role).Configure(cfg)
}

// Config returns the last config pushed for role.
func (c *Coordinator) Config(role Role) live.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configs[role].Clone()
}

func (c *Coordinator) transport(role Role) live.Transport {
	if role == RoleSpeaking {
		return c.speaking
	}
	return c.function
}

// Connected reports whether both sessions are open.
func (c *Coordinator) Connected() bool {
	c.mu.RLock()
	ok := c.connected
	c.mu.RUnlock()
	return ok && c.speaking.Connected() && c.function.Connected()
}

func (c *Coordinator) Muted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

// SetMuted gates audio forwarding. Frames are unaffected.
func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

// Connect opens whichever sessions are down, in parallel. It succeeds only
// when both are open; on failure every open session is disconnected again.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.Connected() {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, role := range []Role{RoleSpeaking, RoleFunction} {
		t := c.transport(role)
		if t.Connected() {
			continue
		}
		g.Go(func() error { return t.Connect(gctx) })
	}
	err := g.Wait()
	if err == nil {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.logger.Info("duet sessions connected")
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	for _, role := range []Role{RoleSpeaking, RoleFunction} {
		c.closeIfOpen(rollbackCtx, role)
	}
	c.logger.Warn("duet connect failed", "error", err)
	return core.NewTransportError("connect sessions", err)
}

func (c *Coordinator) closeIfOpen(ctx context.Context, role Role) {
	t := c.transport(role)
	if !t.Connected() {
		return
	}
	if err := t.Disconnect(ctx); err != nil {
		c.logger.Warn("rollback disconnect failed", "session", role.String(), "error", err)
	}
}

// Watch handles sessions that end without Disconnect until ctx is done. A
// drop marks the duet disconnected, closes the surviving session and calls
// onDrop, so a later Connect dials both sides again.
func (c *Coordinator) Watch(ctx context.Context, onDrop func(role Role, cause error)) {
	for {
		var role Role
		var cause error
		select {
		case <-ctx.Done():
			return
		case cause = <-c.speaking.Drops():
			role = RoleSpeaking
		case cause = <-c.function.Drops():
			role = RoleFunction
		}
		if !c.handleDrop(ctx, role, cause) {
			continue
		}
		if onDrop != nil {
			onDrop(role, cause)
		}
	}
}

func (c *Coordinator) handleDrop(ctx context.Context, role Role, cause error) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	// Redialed since the drop was reported.
	if c.transport(role).Connected() {
		return false
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	other := RoleFunction
	if role == RoleFunction {
		other = RoleSpeaking
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	c.closeIfOpen(closeCtx, other)
	c.logger.Warn("live session dropped", "session", role.String(), "error", cause)
	return true
}

// Disconnect closes both sessions in parallel. The coordinator is marked
// disconnected even when a close fails.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	var errs [2]error
	var g errgroup.Group
	for _, role := range []Role{RoleSpeaking, RoleFunction} {
		role := role
		g.Go(func() error {
			errs[role] = c.transport(role).Disconnect(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs[0], errs[1]); err != nil {
		return core.NewTransportError("disconnect sessions", err)
	}
	c.logger.Info("duet sessions disconnected")
	return nil
}

// SendAudio forwards a microphone chunk to both sessions when connected and
// not muted.
func (c *Coordinator) SendAudio(chunk live.Chunk) error {
	c.mu.RLock()
	ok := c.connected && !c.muted
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.fanOut(chunk)
}

// SendFrame forwards a video frame to both sessions when connected.
func (c *Coordinator) SendFrame(chunk live.Chunk) error {
	if !c.Connected() {
		return nil
	}
	return c.fanOut(chunk)
}

func (c *Coordinator) fanOut(chunk live.Chunk) error {
	return errors.Join(
		c.speaking.SendRealtimeInput(chunk),
		c.function.SendRealtimeInput(chunk),
	)
}

// RunFrameLoop forwards the latest frame from src every FrameInterval until
// ctx is done.
func (c *Coordinator) RunFrameLoop(ctx context.Context, src FrameSource) {
	c.runFrameLoop(ctx, src, FrameInterval)
}

func (c *Coordinator) runFrameLoop(ctx context.Context, src FrameSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			frame, ok := src.LatestFrame()
			if !ok {
				continue
			}
			if err := c.SendFrame(frame); err != nil {
				c.logger.Debug("frame send failed", "error", err)
			}
		}
	}
}
