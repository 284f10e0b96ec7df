package watch

import "time"

// The methods below are the external control surface the IPC server calls
// into from its own goroutine; each blocks until the main loop has
// processed the request.

func (d *Daemon) Pause(ttl time.Duration, reason string) error {
	return d.send(controlMsg{kind: ctrlPause, ttl: ttl, reason: reason})
}

func (d *Daemon) Resume() error {
	return d.send(controlMsg{kind: ctrlResume})
}

func (d *Daemon) Flush() error {
	return d.send(controlMsg{kind: ctrlFlush})
}

func (d *Daemon) Reload() error {
	return d.send(controlMsg{kind: ctrlReload})
}

func (d *Daemon) Shutdown() error {
	return d.send(controlMsg{kind: ctrlShutdown})
}

// StatusSnapshot returns the daemon's current status. Like the other
// control methods it is routed through the main loop, so a caller always
// observes a status at least as fresh as any control message sent before it.
func (d *Daemon) StatusSnapshot() Status {
	ch := make(chan Status, 1)
	d.control <- controlMsg{kind: ctrlStatus, statusCh: ch}
	return <-ch
}

func (d *Daemon) send(msg controlMsg) error {
	msg.errCh = make(chan error, 1)
	d.control <- msg
	return <-msg.errCh
}
