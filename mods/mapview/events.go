package mapview

import "sync"

type Event string

const (
	EventMoveStart Event = "movestart"
	EventMoveEnd   Event = "moveend"
)

type Listener func(ev Event)

// Listeners is a per-event callback list.
type Listeners struct {
	mu   sync.Mutex
	list map[Event][]Listener
}

func (l *Listeners) Add(ev Event, cb Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.list == nil {
		l.list = map[Event][]Listener{}
	}
	l.list[ev] = append(l.list[ev], cb)
}

// Fire calls the listeners of ev outside of the lock.
func (l *Listeners) Fire(ev Event) {
	l.mu.Lock()
	cbs := append([]Listener(nil), l.list[ev]...)
	l.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}
