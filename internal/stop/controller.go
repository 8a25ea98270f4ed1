// Package stop holds the two-stage cancellation state shared between
// the interrupt handler and the orchestration loops. The handler only
// writes the flags; the loops only poll them at defined checkpoints.
package stop

import "sync"

// Stage is the lifecycle stage after a stop request
type Stage int

const (
	StageRunning Stage = iota
	StageGraceful
	StageForced
)

// Controller encapsulates the stop/force-stop/currently-processing
// flags. Construct one per batch or poll session and pass it by
// reference; Reset prepares it for reuse in the same process.
type Controller struct {
	mu         sync.Mutex
	stop       bool
	force      bool
	processing bool
}

// NewController returns a controller in the running stage
func NewController() *Controller {
	return &Controller{}
}

// RequestStop records a stop request and returns the resulting stage:
// the first call requests a graceful stop, the second a forced one.
func (c *Controller) RequestStop() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop {
		c.force = true
		return StageForced
	}
	c.stop = true
	return StageGraceful
}

// StopRequested reports whether a graceful stop has been requested
func (c *Controller) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}

// ForceStopRequested reports whether a second stop signal arrived
func (c *Controller) ForceStopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.force
}

// SetProcessing marks whether an issue is currently being executed
func (c *Controller) SetProcessing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processing = v
}

// Processing reports whether an issue is currently being executed
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// Reset clears all flags for reuse after a batch or poll session ends
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop = false
	c.force = false
	c.processing = false
}
