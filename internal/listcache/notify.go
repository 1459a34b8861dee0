package listcache

import (
	"sync"
	"time"
)

type Level string

const LevelError Level = "error"

// Notification is a transient message for the operator. It never blocks the
// list; the presentation layer shows it once and drops it.
type Notification struct {
	Level   Level     `json:"level"`
	Action  Action    `json:"action"`
	ID      string    `json:"id,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Feed buffers the latest notifications until they are drained. Older
// entries are dropped once the buffer is full.
type Feed struct {
	mu    sync.Mutex
	max   int
	items []Notification
}

func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 50
	}
	return &Feed{max: max}
}

func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, n)
	if over := len(f.items) - f.max; over > 0 {
		f.items = append(f.items[:0:0], f.items[over:]...)
	}
}

// Drain returns the buffered notifications and clears the feed.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.items
	f.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}
