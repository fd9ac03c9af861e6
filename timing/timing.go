// Package timing implements the Event Timing Controller (§4.3): a
// virtual-clock scheduler that fires events from registered dynamic
// event sources in timestamp order, at a configurable speed, with
// pause/resume and push-reactive re-evaluation.
//
// Concurrency (§5): one mutex guards sources, speed, paused, waitForPush,
// the time checkpoints, and the ended/shouldRescan flags. Three condition
// variables coordinate the processing goroutine and external waiters:
// fireCond (processing loop wakes on pause/resume/push/finish), initCond
// (waitTillInitialised), and finishCond (waitTillFinished).
package timing

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"weak"

	"mcf/eventsource"
	"mcf/internal/check"
	"mcf/timestamp"
)

type sourceEntry struct {
	name   string
	source eventsource.Source
}

// Controller is the Event Timing Controller.
type Controller struct {
	mu         sync.Mutex
	fireCond   *sync.Cond
	finishCond *sync.Cond
	initCond   *sync.Cond

	log *slog.Logger

	sources []sourceEntry

	speed       float64
	paused      bool
	waitForPush bool

	simStart     timestamp.Timestamp
	prevRunStart time.Time
	pauseStart   time.Time
	runElapsed   time.Duration
	pauseElapsed time.Duration

	initialized  bool
	ended        bool
	shouldRescan bool

	nextEventTime timestamp.Timestamp
	nextEventSet  bool

	nextEventCallback func(sourceName, topic string)
	finishedCallback  func()

	pollInterval time.Duration
	started      bool
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the controller's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithPollInterval overrides the granularity at which the processing loop
// re-checks for pushes/pause/finish while waiting. Defaults to 1ms,
// matching the reference "poll at 1ms" waitForPush behavior.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// New constructs a Controller at speed 1.0, unstarted.
func New(opts ...Option) *Controller {
	c := &Controller{
		log:          slog.Default(),
		speed:        1.0,
		pollInterval: time.Millisecond,
	}
	c.fireCond = sync.NewCond(&c.mu)
	c.finishCond = sync.NewCond(&c.mu)
	c.initCond = sync.NewCond(&c.mu)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetNextEventCallback installs a hook invoked once per chosen next
// event, before it fires.
func (c *Controller) SetNextEventCallback(fn func(sourceName, topic string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextEventCallback = fn
}

// SetFinishedCallback installs a hook invoked exactly once when the
// processing loop exits, whether by exhausting every source or by an
// explicit Finish call. A Replay Event Controller bound to this
// Controller installs its own FINISH transition here.
func (c *Controller) SetFinishedCallback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishedCallback = fn
}

// AddEventSource registers source under name. The source list is
// searched linearly; adding triggers a next-event re-check.
func (c *Controller) AddEventSource(name string, source eventsource.Source) {
	c.mu.Lock()
	c.sources = append(c.sources, sourceEntry{name: name, source: source})
	c.shouldRescan = true
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// RemoveEventSource removes the source registered under name, if any.
func (c *Controller) RemoveEventSource(name string) {
	c.mu.Lock()
	for i, e := range c.sources {
		if e.name == name {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			break
		}
	}
	c.shouldRescan = true
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// checkpointLocked folds the elapsed time since the last checkpoint into
// runElapsed unconditionally, and into pauseElapsed too iff paused or
// waiting was in effect, then resets both checkpoint markers to now.
// Called before every state change that would otherwise change which
// bucket subsequent elapsed time accrues to (pause, resume, begin/end
// wait-for-push, speed change), so simulated time stays continuous
// across the change.
//
// runElapsed always grows as if the controller never stopped running;
// while paused/waiting, pauseElapsed grows by the exact same
// speed-scaled amount, so the two cancel and simulated time freezes for
// the duration of the pause instead of drifting with wall-clock time.
//
// Before the first event has been scanned there is no simulated clock
// yet, so nothing accrues; the processing loop sets both markers when it
// initializes the clock.
func (c *Controller) checkpointLocked() {
	if !c.initialized {
		return
	}
	now := time.Now()
	c.runElapsed += time.Duration(float64(now.Sub(c.prevRunStart)) * c.speed)
	if c.paused || c.waitForPush {
		c.pauseElapsed += time.Duration(float64(now.Sub(c.pauseStart)) * c.speed)
	}
	c.prevRunStart = now
	c.pauseStart = now
}

// SetSpeed rescales the proportional wait without warping simulated time:
// elapsed time to this point is checkpointed at the old speed before the
// new speed takes effect.
func (c *Controller) SetSpeed(factor float64) {
	check.Assertf(factor > 0, "timing: speed factor must be positive, got %v", factor)

	c.mu.Lock()
	c.checkpointLocked()
	c.speed = factor
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// GetPlaybackSpeed returns the current speed factor.
func (c *Controller) GetPlaybackSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Pause is a no-op if already paused. Otherwise it checkpoints elapsed
// time and sets the paused flag; resuming is required (independently of
// waitForPush) before simulated time advances again.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.checkpointLocked()
	c.paused = true
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// Resume clears the paused flag, checkpointing elapsed time first.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.checkpointLocked()
	c.paused = false
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// BeginWaitForPushEvent marks the controller as waiting for an external
// push because no source currently has a pending event.
func (c *Controller) BeginWaitForPushEvent() {
	c.mu.Lock()
	if c.waitForPush {
		c.mu.Unlock()
		return
	}
	c.checkpointLocked()
	c.waitForPush = true
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// EndWaitForPushEvent clears the waitForPush flag.
func (c *Controller) EndWaitForPushEvent() {
	c.mu.Lock()
	if !c.waitForPush {
		c.mu.Unlock()
		return
	}
	c.checkpointLocked()
	c.waitForPush = false
	c.mu.Unlock()
	c.fireCond.Broadcast()
}

// TriggerNewEventPushed re-evaluates the next event if source's next
// timestamp is earlier than the currently scheduled one (or none was
// scheduled yet), and ends a waitForPush if one was in progress.
func (c *Controller) TriggerNewEventPushed(source eventsource.Source) {
	ts, _, ok := source.PeekNext()

	c.mu.Lock()
	if !ok {
		c.mu.Unlock()
		return
	}
	if !c.nextEventSet || ts < c.nextEventTime {
		c.shouldRescan = true
	}
	waiting := c.waitForPush
	c.mu.Unlock()

	if waiting {
		c.EndWaitForPushEvent()
	}
	c.fireCond.Broadcast()
}

// Finish sets the terminal flag and unblocks every waiter.
func (c *Controller) Finish() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.mu.Unlock()

	c.fireCond.Broadcast()
	c.finishCond.Broadcast()

	c.mu.Lock()
	cb := c.finishedCallback
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// IsFinished reports whether Finish has been called (explicitly or by
// the processing loop exhausting every source).
func (c *Controller) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// GetTime returns the current simulated time. ok is false if the
// controller has never successfully scanned a first event (e.g. zero
// sources registered).
func (c *Controller) GetTime() (timestamp.Timestamp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getTimeLocked()
}

// getTimeLocked mirrors checkpointLocked's accounting without mutating
// any state: runTime is computed unconditionally (as if still running
// since prevRunStart), and pauseTime is computed the same way, scaled
// by the same speed, iff currently paused/waiting — the two cancel
// exactly while paused, keeping simulated time frozen and non-decreasing
// across repeated calls during a single pause instead of drifting
// downward with however long the pause has been live.
func (c *Controller) getTimeLocked() (timestamp.Timestamp, bool) {
	if !c.initialized {
		return 0, false
	}
	now := time.Now()
	runTime := time.Duration(float64(now.Sub(c.prevRunStart)) * c.speed)
	var pauseTime time.Duration
	if c.paused || c.waitForPush {
		pauseTime = time.Duration(float64(now.Sub(c.pauseStart)) * c.speed)
	}
	offset := c.runElapsed + runTime - c.pauseElapsed - pauseTime
	return c.simStart.Add(offset), true
}

// WaitTillInitialised blocks until the first successful source scan, or
// ctx is done, or Finish is called.
func (c *Controller) WaitTillInitialised(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := context.AfterFunc(ctx, c.initCond.Broadcast)
	defer stop()

	for !c.initialized && !c.ended && ctx.Err() == nil {
		c.initCond.Wait()
	}
}

// WaitTillFinished blocks until Finish has been called, or ctx is done.
func (c *Controller) WaitTillFinished(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := context.AfterFunc(ctx, c.finishCond.Broadcast)
	defer stop()

	for !c.ended && ctx.Err() == nil {
		c.finishCond.Wait()
	}
}

// Start spawns the single processing goroutine. Calling Start more than
// once is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

// NotifyFunc builds the notify callback an eventsource.QueuedSource takes
// at construction, wired through a weak pointer to c so that a torn-down
// Controller makes the callback a silent no-op instead of keeping the
// Controller reachable from every source it ever fed.
func NotifyFunc(c *Controller) func(eventsource.Source) {
	wp := weak.Make(c)
	return func(s eventsource.Source) {
		if ctrl := wp.Value(); ctrl != nil {
			ctrl.TriggerNewEventPushed(s)
		}
	}
}

func (c *Controller) run() {
	for {
		name, src, ts, topic, hasEvent := c.scanNext()
		if c.checkEnded() {
			return
		}

		if !hasEvent {
			if c.allSourcesFinished() {
				c.Finish()
				return
			}
			c.BeginWaitForPushEvent()
			if !c.waitForRescanOrEnd() {
				return
			}
			c.EndWaitForPushEvent()
			continue
		}

		c.mu.Lock()
		if !c.initialized {
			c.simStart = ts
			c.prevRunStart = time.Now()
			c.pauseStart = c.prevRunStart
			c.initialized = true
			c.initCond.Broadcast()
		}
		c.mu.Unlock()

		c.mu.Lock()
		cb := c.nextEventCallback
		c.mu.Unlock()
		if cb != nil {
			cb(name, topic)
		}

		if !c.waitWhilePausedOrWaiting() {
			return
		}

		fire, ended := c.waitUntilDue(ts)
		if ended {
			return
		}
		if !fire {
			continue // a rescan was requested; loop back to scanNext
		}

		src.Fire()
	}
}

func (c *Controller) checkEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// scanNext linearly scans every registered source for its next event and
// returns the one with the minimum timestamp, ties broken by list order.
func (c *Controller) scanNext() (name string, src eventsource.Source, ts timestamp.Timestamp, topic string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shouldRescan = false
	c.nextEventSet = false

	var best sourceEntry
	var bestTS timestamp.Timestamp
	var bestTopic string
	found := false

	for _, e := range c.sources {
		t, tp, has := e.source.PeekNext()
		if !has {
			continue
		}
		if !found || t < bestTS {
			found = true
			best = e
			bestTS = t
			bestTopic = tp
		}
	}

	if !found {
		return "", nil, 0, "", false
	}
	c.nextEventTime = bestTS
	c.nextEventSet = true
	return best.name, best.source, bestTS, bestTopic, true
}

func (c *Controller) allSourcesFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sources) == 0 {
		return false
	}
	for _, e := range c.sources {
		if !e.source.IsFinished() {
			return false
		}
	}
	return true
}

// waitForRescanOrEnd polls at pollInterval until a rescan is requested, a
// source reports finished, or the controller ends. It returns false if
// the controller ended.
func (c *Controller) waitForRescanOrEnd() bool {
	for {
		c.mu.Lock()
		rescan := c.shouldRescan
		ended := c.ended
		c.mu.Unlock()

		if ended {
			return false
		}
		if rescan || c.allSourcesFinished() {
			return true
		}
		time.Sleep(c.pollInterval)
	}
}

// waitWhilePausedOrWaiting blocks while paused or waitForPush are set. It
// returns false if the controller ended while waiting.
func (c *Controller) waitWhilePausedOrWaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for (c.paused || c.waitForPush) && !c.ended {
		c.fireCond.Wait()
	}
	return !c.ended
}

// waitUntilDue sleeps until the simulated clock reaches ts, polling at
// pollInterval so pause/resume/speed changes and rescans take effect
// promptly. fire is false if a rescan was requested meanwhile (the
// caller should re-scan rather than fire the stale choice); ended is
// true if the controller finished while waiting.
func (c *Controller) waitUntilDue(ts timestamp.Timestamp) (fire bool, ended bool) {
	for {
		c.mu.Lock()
		if c.ended {
			c.mu.Unlock()
			return false, true
		}
		if c.shouldRescan {
			c.mu.Unlock()
			return false, false
		}
		if c.paused || c.waitForPush {
			c.mu.Unlock()
			if !c.waitWhilePausedOrWaiting() {
				return false, true
			}
			continue
		}

		now, _ := c.getTimeLocked()
		if now >= ts {
			c.mu.Unlock()
			return true, false
		}
		remaining := ts.Sub(now)
		speed := c.speed
		c.mu.Unlock()

		wallRemaining := remaining
		if speed > 0 {
			wallRemaining = time.Duration(float64(remaining) / speed)
		}
		sleepFor := c.pollInterval
		if wallRemaining < sleepFor {
			sleepFor = wallRemaining
		}
		if sleepFor > 0 {
			time.Sleep(sleepFor)
		}
	}
}
