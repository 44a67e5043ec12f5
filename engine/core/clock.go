package core

import "time"

// Clock keeps the total running time and the time between the last two
// ticks, both in seconds.
type Clock struct {
	now       func() time.Time
	startTime time.Time
	lastTick  time.Time
	elapsed   float64
	delta     float64
	stopped   bool
}

func NewClock() *Clock {
	return &Clock{now: time.Now, stopped: true}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.now()
	c.lastTick = c.startTime
	c.elapsed = 0
	c.delta = 0
	c.stopped = false
}

// Updates the provided clock. Should be called once per frame, just before
// reading elapsed or delta time. Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.stopped {
		return
	}
	t := c.now()
	c.delta = t.Sub(c.lastTick).Seconds()
	if c.delta < 0 {
		c.delta = 0
	}
	c.elapsed = t.Sub(c.startTime).Seconds()
	c.lastTick = t
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.stopped = true
	c.delta = 0
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

func (c *Clock) Delta() float64 {
	return c.delta
}

func (c *Clock) Stopped() bool {
	return c.stopped
}
