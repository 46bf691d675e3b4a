package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user facing toast.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Feed keeps the most recent notifications for the page to display.
type Feed struct {
	mu    sync.Mutex
	limit int
	items []Notification
	now   func() time.Time
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 20
	}
	return &Feed{limit: limit, now: time.Now}
}

func (f *Feed) Push(level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, Notification{Level: level, Message: message, At: f.now()})
	if len(f.items) > f.limit {
		f.items = f.items[len(f.items)-f.limit:]
	}
}

func (f *Feed) Error(message string)   { f.Push(LevelError, message) }
func (f *Feed) Success(message string) { f.Push(LevelSuccess, message) }
func (f *Feed) Info(message string)    { f.Push(LevelInfo, message) }
func (f *Feed) Warning(message string) { f.Push(LevelWarning, message) }

// Recent returns notifications oldest first.
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}
