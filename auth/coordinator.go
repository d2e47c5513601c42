package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/platform"
)

// Coordinator detects the platform once and mounts only the matching orchestrator. The
// others end as Skipped without doing anything.
type Coordinator struct {
	detector      PlatformSource
	orchestrators []*Orchestrator
	log           zerolog.Logger

	mu       sync.Mutex
	detected platform.Platform
	active   *Orchestrator
}

type CoordinatorOption func(*Coordinator)

func WithCoordinatorLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

func NewCoordinator(detector PlatformSource, orchestrators []*Orchestrator, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		detector:      detector,
		orchestrators: orchestrators,
		log:           zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Run dispatches to the orchestrator for the detected platform and waits for it. With no
// orchestrator for that platform the result is Skipped.
func (c *Coordinator) Run(ctx context.Context) Result {
	p := c.detector.Detect()
	c.log.Debug().Str("platform", p.String()).Msg("platform detected")

	var active *Orchestrator
	for _, o := range c.orchestrators {
		if o.Platform() == p && active == nil {
			active = o
			continue
		}
		o.skip()
	}

	c.mu.Lock()
	c.detected = p
	c.active = active
	c.mu.Unlock()

	if active == nil {
		return Result{Platform: p, State: StateSkipped}
	}
	active.Mount(ctx)
	return active.Wait(ctx)
}

func (c *Coordinator) Platform() platform.Platform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detected
}

// States reports the state of every orchestrator.
func (c *Coordinator) States() map[platform.Platform]State {
	states := make(map[platform.Platform]State, len(c.orchestrators))
	for _, o := range c.orchestrators {
		states[o.Platform()] = o.State()
	}
	return states
}

// Unmount tears down the active orchestrator.
func (c *Coordinator) Unmount() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.Unmount()
	}
}
