package call

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/callbridge/pkg/asr"
	"github.com/realtime-ai/callbridge/pkg/audio"
	"github.com/realtime-ai/callbridge/pkg/dialogue"
	"github.com/realtime-ai/callbridge/pkg/prompts"
)

// CoordinatorConfig wires the shared backends used by every call.
type CoordinatorConfig struct {
	Recognizer asr.Provider
	Backend    dialogue.Backend
	Synth      Synthesizer
	Observers  Observers
	Prompts    *prompts.Store
	Frames     audio.FrameAssemblerConfig
}

// Coordinator starts calls. It is safe for concurrent use.
type Coordinator struct {
	cfg    CoordinatorConfig
	active atomic.Int64
	wg     sync.WaitGroup
}

// NewCoordinator returns a coordinator. A zero Frames config uses
// audio.DefaultFrameAssemblerConfig.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Frames.FrameChunks <= 0 {
		cfg.Frames = audio.DefaultFrameAssemblerConfig()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.NewStore(prompts.Default())
	}
	return &Coordinator{cfg: cfg}
}

// Accept starts a call on an accepted telephony socket. It dials the
// recognizer, spawns the inbound leg and the engine, and returns without
// waiting for either. If the recognizer cannot be reached the telephony
// socket is closed and the dial error returned.
func (c *Coordinator) Accept(ctx context.Context, tel Telephony) error {
	// The call outlives the request that carried the upgrade.
	ctx = context.WithoutCancel(ctx)

	rec, err := c.cfg.Recognizer.Connect(ctx)
	if err != nil {
		_ = tel.Close()
		return fmt.Errorf("connect recognizer: %w", err)
	}

	handoff := NewHandoff()
	leg := newInboundLeg(tel, rec, handoff, c.cfg.Frames)
	engine := NewEngine(EngineDeps{
		Telephony:  tel,
		Recognizer: rec,
		Backend:    c.cfg.Backend,
		Synth:      c.cfg.Synth,
		Observers:  c.cfg.Observers,
		Handoff:    handoff,
	}, c.cfg.Prompts.Snapshot())

	c.active.Add(1)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		leg.run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		defer c.active.Add(-1)
		_ = engine.Run(ctx)
	}()

	log.Debug().Str("component", "coordinator").Str("asr", c.cfg.Recognizer.Name()).Msg("call accepted")
	return nil
}

// ActiveCalls returns the number of calls whose engine has not finished.
func (c *Coordinator) ActiveCalls() int {
	return int(c.active.Load())
}

// Wait blocks until every accepted call has finished or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
