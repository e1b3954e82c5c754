package worker

import (
	"sync"
	"time"
)

// Lifecycle tracks worker inactivity. A reusable worker exits once it has
// been idle for the timeout; the timer is paused while a session is active.
type Lifecycle struct {
	mu           sync.Mutex
	timer        *time.Timer
	startTime    time.Time
	lastActivity time.Time
	timeout      time.Duration
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a lifecycle with the given idle timeout.
// A zero timeout never fires; only Shutdown ends the lifecycle.
func NewLifecycle(timeout time.Duration) *Lifecycle {
	now := time.Now()
	l := &Lifecycle{
		startTime:    now,
		lastActivity: now,
		timeout:      timeout,
		shutdownChan: make(chan struct{}),
	}
	if timeout > 0 {
		l.timer = time.AfterFunc(timeout, l.triggerShutdown)
	}
	return l
}

// Pause stops the idle timer for the duration of a session.
func (l *Lifecycle) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastActivity = time.Now()
	if l.timer != nil {
		l.timer.Stop()
	}
}

// ResetTimer restarts the idle timer from now.
func (l *Lifecycle) ResetTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastActivity = time.Now()
	if l.timer != nil {
		l.timer.Reset(l.timeout)
	}
}

// IdleRemaining returns the duration until the idle shutdown.
func (l *Lifecycle) IdleRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer == nil {
		return 0
	}
	remaining := l.timeout - time.Since(l.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Uptime returns how long the worker has been running.
func (l *Lifecycle) Uptime() time.Duration {
	return time.Since(l.startTime)
}

// ShutdownChan is closed when shutdown is triggered.
func (l *Lifecycle) ShutdownChan() <-chan struct{} {
	return l.shutdownChan
}

func (l *Lifecycle) triggerShutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownChan)
	})
}

// Shutdown stops the timer and triggers shutdown. Idempotent.
func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	l.triggerShutdown()
}
