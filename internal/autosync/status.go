package autosync

// Status returns a consistent snapshot of the coordinator. It never starts
// a cycle.
func (c *Coordinator) Status() Status {
	cfg := c.config()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Enabled:             cfg.Enabled,
		IntervalMinutes:     cfg.IntervalMinutes,
		AutoMerge:           cfg.AutoMerge,
		State:               c.stateLocked(),
		PendingProjectNames: sortedNames(c.pending),
	}
	if c.lastCheck != nil {
		t := *c.lastCheck
		st.LastCheckTime = &t
	}
	return st
}

// ProjectsWithUpdates returns the sorted names in the pending-updates set.
func (c *Coordinator) ProjectsWithUpdates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedNames(c.pending)
}

func (c *Coordinator) stateLocked() State {
	switch {
	case c.stop == nil:
		return StateStopped
	case c.running.Load():
		return StateChecking
	default:
		return StateIdle
	}
}
