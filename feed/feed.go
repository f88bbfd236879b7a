// Package feed keeps a user's notification list current from a change feed.
package feed

import (
	"context"
	"sync"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventKind string

const (
	Insert EventKind = "insert"
	Update EventKind = "update"
)

// Event is one row-level change of the notifications collection.
type Event struct {
	Kind         EventKind           `json:"kind"`
	Notification models.Notification `json:"notification"`
}

// Watcher opens a change feed scoped to one user's notifications. The returned
// channel closes once ctx is cancelled, which also releases the feed.
type Watcher interface {
	Watch(ctx context.Context, userID primitive.ObjectID) (<-chan Event, error)
}

// Feed is a user's notification list, newest first.
type Feed struct {
	mu     sync.Mutex
	userID primitive.ObjectID
	items  []models.Notification
}

func New(userID primitive.ObjectID, initial []models.Notification) *Feed {
	return &Feed{
		userID: userID,
		items:  append([]models.Notification(nil), initial...),
	}
}

func (f *Feed) indexOf(id primitive.ObjectID) int {
	for i := range f.items {
		if f.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Apply folds a change event into the list and reports whether anything changed.
// Inserts are prepended unless the id is already present; updates replace the
// matching entry in place. Events for other users are ignored.
func (f *Feed) Apply(ev Event) bool {
	if ev.Notification.UserID != f.userID {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(ev.Notification.ID)
	switch ev.Kind {
	case Insert:
		if i >= 0 {
			return false
		}
		f.items = append([]models.Notification{ev.Notification}, f.items...)
		return true
	case Update:
		if i < 0 {
			return false
		}
		f.items[i] = ev.Notification
		return true
	}
	return false
}

// MarkRead flips the local read flag. Call it only after the store accepted the write.
func (f *Feed) MarkRead(id primitive.ObjectID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(id)
	if i < 0 || f.items[i].IsRead {
		return false
	}
	f.items[i].IsRead = true
	return true
}

// Items returns a copy of the current list.
func (f *Feed) Items() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification{}, f.items...)
}

func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for i := range f.items {
		if !f.items[i].IsRead {
			n++
		}
	}
	return n
}

// Run applies events until the channel closes or ctx ends, calling onChange for
// every event that altered the list.
func (f *Feed) Run(ctx context.Context, events <-chan Event, onChange func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if f.Apply(ev) && onChange != nil {
				onChange(ev)
			}
		}
	}
}
