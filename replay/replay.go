// Package replay implements the Replay Event Controller (§4.6): a state
// machine layered over an Event Timing Controller that adds run-mode
// gating (continuous, single-step, step-time) and pipeline-end
// synchronization on top of the ETC's raw virtual clock.
package replay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mcf/timing"
	"mcf/trigger"
	"mcf/value"
)

// State is the REC's finite state machine (§4.6).
type State int

const (
	Uninitialized State = iota
	Playback
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Playback:
		return "PLAYBACK"
	case Paused:
		return "PAUSED"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// RunMode selects how the REC gates the ETC between events.
type RunMode int

const (
	Continuous RunMode = iota
	SingleStep
	StepTime
)

func (m RunMode) String() string {
	switch m {
	case Continuous:
		return "CONTINUOUS"
	case SingleStep:
		return "SINGLE_STEP"
	case StepTime:
		return "STEP_TIME"
	default:
		return "UNKNOWN"
	}
}

// Params bundles every REC-level playback parameter (§4.6).
type Params struct {
	RunMode           RunMode
	RunWithoutDrops   bool
	SpeedFactor       float64
	PipelineEndTopics []string
	WaitInputSource   string
	WaitInputTopic    string
	StepTimeMicros    int64
}

// Controller is the Replay Event Controller.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	log *slog.Logger
	etc *timing.Controller

	requireInit bool
	startPaused bool

	state State
	params      Params
	pendingParams Params
	hasPending    bool
	pendingStep   bool

	stepRequested bool

	pipelineEnd         *trigger.TopicFlags
	pipelineEndCallback func()
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithRequireInitialisation sets the REC's entry state to UNINITIALIZED,
// holding structural parameter updates and the first step request until
// SetInitialisationComplete is called. Defaults to true.
func WithRequireInitialisation(require bool) Option {
	return func(c *Controller) { c.requireInit = require }
}

// WithStartPaused selects PAUSED over PLAYBACK as the state reached once
// initialization completes (or immediately, if initialization isn't
// required). Defaults to false.
func WithStartPaused(paused bool) Option {
	return func(c *Controller) { c.startPaused = paused }
}

// WithLogger overrides the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithPipelineEndCallback installs a hook invoked once per successful
// wait for all pipeline-end topics to be modified, before the ETC is
// resumed.
func WithPipelineEndCallback(fn func()) Option {
	return func(c *Controller) { c.pipelineEndCallback = fn }
}

// New constructs a Controller driving etc, with pipeline-end detection
// backed by store.
func New(etc *timing.Controller, store value.Store, opts ...Option) *Controller {
	c := &Controller{
		log:         slog.Default(),
		etc:         etc,
		requireInit: true,
		params:      Params{SpeedFactor: 1.0},
	}
	c.cond = sync.NewCond(&c.mu)
	c.pipelineEnd = trigger.New(store)
	for _, o := range opts {
		o(c)
	}

	if c.requireInit {
		c.state = Uninitialized
	} else if c.startPaused {
		c.state = Paused
		etc.Pause()
	} else {
		c.state = Playback
	}

	etc.SetNextEventCallback(c.onNextEvent)
	etc.SetFinishedCallback(c.onETCFinished)
	return c
}

// GetState returns the REC's current FSM state.
func (c *Controller) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetParams returns a copy of the REC's current (applied) parameters.
func (c *Controller) GetParams() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetParams updates playback parameters. SpeedFactor, if positive, is
// forwarded to the ETC and applied immediately regardless of state.
// Every other field is applied immediately once initialized, or queued
// for SetInitialisationComplete while UNINITIALIZED.
func (c *Controller) SetParams(p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.SpeedFactor > 0 {
		c.etc.SetSpeed(p.SpeedFactor)
		c.params.SpeedFactor = p.SpeedFactor
	}

	if c.state == Uninitialized {
		speed := c.params.SpeedFactor
		c.pendingParams = p
		c.pendingParams.SpeedFactor = speed
		c.hasPending = true
		return
	}
	c.applyStructuralParamsLocked(p)
}

func (c *Controller) applyStructuralParamsLocked(p Params) {
	c.params.RunMode = p.RunMode
	c.params.RunWithoutDrops = p.RunWithoutDrops
	c.params.PipelineEndTopics = p.PipelineEndTopics
	c.params.WaitInputSource = p.WaitInputSource
	c.params.WaitInputTopic = p.WaitInputTopic
	c.params.StepTimeMicros = p.StepTimeMicros
	c.pipelineEnd.UpdateTopics(p.PipelineEndTopics)
}

// SetInitialisationComplete applies every queued parameter update and
// queued StepOnce request, then transitions out of UNINITIALIZED. A
// no-op once called (or if the REC has already finished).
func (c *Controller) SetInitialisationComplete() {
	c.mu.Lock()
	if c.state != Uninitialized {
		c.mu.Unlock()
		return
	}
	if c.hasPending {
		c.applyStructuralParamsLocked(c.pendingParams)
		c.hasPending = false
	}
	if c.startPaused {
		c.state = Paused
	} else {
		c.state = Playback
	}
	step := c.pendingStep
	c.pendingStep = false
	c.mu.Unlock()

	if c.state == Paused {
		c.etc.Pause()
	} else {
		c.etc.Resume()
	}
	c.cond.Broadcast()

	if step {
		c.StepOnce()
	}
}

// Pause transitions to PAUSED and pauses the ETC. No-op once FINISHED.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state == Finished {
		c.mu.Unlock()
		return
	}
	c.state = Paused
	c.mu.Unlock()

	c.etc.Pause()
	c.cond.Broadcast()
}

// Resume transitions to PLAYBACK and resumes the ETC. No-op once
// FINISHED.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.state == Finished {
		c.mu.Unlock()
		return
	}
	c.state = Playback
	c.mu.Unlock()

	c.etc.Resume()
	c.cond.Broadcast()
}

// Finish transitions to FINISHED (terminal) and finishes the ETC. It
// also releases a pipeline-end wait and an external-step wait in
// progress on the ETC's processing goroutine (onNextEvent,
// waitForExternalStep), so a Finish during shutdown can never leave
// that goroutine blocked forever.
func (c *Controller) Finish() {
	c.mu.Lock()
	if c.state == Finished {
		c.mu.Unlock()
		return
	}
	c.state = Finished
	c.mu.Unlock()

	c.pipelineEnd.ExitWaitForAllTopicsModified()
	c.etc.Finish()
	c.cond.Broadcast()
}

// StepOnce requests a single step. Its effect depends on RunMode: in
// SingleStep it releases one event currently gated on an external step;
// in StepTime it advances simulated time by StepTimeMicros then pauses
// again; in Continuous it is a no-op. Queued while UNINITIALIZED.
func (c *Controller) StepOnce() {
	c.mu.Lock()
	if c.state == Uninitialized {
		c.pendingStep = true
		c.mu.Unlock()
		return
	}
	mode := c.params.RunMode
	c.mu.Unlock()

	switch mode {
	case SingleStep:
		c.mu.Lock()
		c.stepRequested = true
		c.mu.Unlock()
		c.cond.Broadcast()
	case StepTime:
		c.advanceStepTime()
	default:
		c.log.Warn("replay: StepOnce has no effect outside SingleStep/StepTime run modes")
	}
}

func (c *Controller) advanceStepTime() {
	c.mu.Lock()
	micros := c.params.StepTimeMicros
	c.mu.Unlock()

	cur, ok := c.etc.GetTime()
	if !ok {
		return
	}
	target := cur.Add(time.Duration(micros) * time.Microsecond)

	c.etc.Resume()
	for {
		if c.etc.IsFinished() {
			return
		}
		now, ok := c.etc.GetTime()
		if ok && now >= target {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.etc.Pause()
}

func (c *Controller) waitForExternalStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.stepRequested && c.state != Finished {
		c.cond.Wait()
	}
	c.stepRequested = false
}

// onNextEvent is installed as the ETC's next-event callback. In
// no-drops Continuous/SingleStep mode, when the about-to-fire event
// matches (WaitInputSource, WaitInputTopic) it pauses the ETC, waits for
// every pipeline-end topic to be modified, invokes the pipeline-end
// callback if any, and (SingleStep only) further waits for an external
// StepOnce before resuming. It runs on the ETC's own processing
// goroutine, so a pipeline-end wait abandoned by Finish (exited=true)
// must not proceed to the SingleStep gate or resume the ETC — the
// controller is shutting down and the ETC's own Finish() already takes
// care of unblocking everything else.
func (c *Controller) onNextEvent(sourceName, topic string) {
	c.mu.Lock()
	mode := c.params.RunMode
	noDrops := c.params.RunWithoutDrops
	match := sourceName == c.params.WaitInputSource && topic == c.params.WaitInputTopic
	c.mu.Unlock()

	if mode == StepTime || !noDrops || !match {
		return
	}

	c.etc.Pause()
	exited := c.pipelineEnd.WaitForAllTopicsModified(context.Background())
	if c.GetState() == Finished {
		return
	}
	if !exited {
		if cb := c.pipelineEndCallback; cb != nil {
			cb()
		}
	}
	if mode == SingleStep {
		c.waitForExternalStep()
		if c.GetState() == Finished {
			return
		}
	}
	c.etc.Resume()
}

func (c *Controller) onETCFinished() {
	c.mu.Lock()
	c.state = Finished
	c.mu.Unlock()
	c.cond.Broadcast()
}
