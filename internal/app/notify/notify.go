/*
Package notify delivers short user-visible acknowledgments and error notices.

It abstracts the toast layer of a UI: mutations report success naming the
counterparty, failed user actions report one error each.
*/
package notify

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"streamify/internal/pkg/logx"
)

// Notifier shows one-shot messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Error(string)   {}

// Console writes notifications as lines to an io.Writer and mirrors them to the log.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Success(msg string) {
	logx.Debug("Success notification", "message", msg)
	c.write("OK", msg)
}

func (c *Console) Error(msg string) {
	logx.Debug("Error notification", "message", msg)
	c.write("ERROR", msg)
}

func (c *Console) write(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s\n", level, msg)
}

// Tracker forwards to a Notifier and records whether an error notice was shown,
// so the caller does not report the same failure a second time.
type Tracker struct {
	Notifier
	errored atomic.Bool
}

// NewTracker wraps n.
func NewTracker(n Notifier) *Tracker {
	return &Tracker{Notifier: n}
}

func (t *Tracker) Error(msg string) {
	t.errored.Store(true)
	t.Notifier.Error(msg)
}

// Reported reports whether Error was called since the last Reset.
func (t *Tracker) Reported() bool { return t.errored.Load() }

// Reset forgets earlier error notices.
func (t *Tracker) Reset() { t.errored.Store(false) }
