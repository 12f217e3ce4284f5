package viewer

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

type AlertKind string

const (
	AlertGeometrySyncFailed AlertKind = "GEOMETRY_SYNC_FAILED"
	AlertLayerFailed        AlertKind = "LAYER_FAILED"
)

// Alert is a non-fatal signal raised to the user.
type Alert struct {
	ID         string    `json:"id"`
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	GeometryID string    `json:"geometryId,omitempty"`
	LayerID    string    `json:"layerId,omitempty"`
	Maps       []string  `json:"maps,omitempty"`
	Time       time.Time `json:"time"`
}

type alertBox struct {
	mu     sync.Mutex
	list   []Alert
	subs   map[int]chan Alert
	nextID int
}

func (ab *alertBox) len() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return len(ab.list)
}

// raiseLocked records an alert and hands it to every subscriber that has
// room for it.
func (v *Viewer) raiseLocked(a Alert) {
	if a.ID == "" {
		if id, err := uuid.NewV4(); err == nil {
			a.ID = id.String()
		}
	}
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	v.log.Warnf("alert %s, %s", a.Kind, a.Message)
	ab := &v.alerts
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.list = append(ab.list, a)
	for _, ch := range ab.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

func (v *Viewer) Alerts() []Alert {
	ab := &v.alerts
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return append([]Alert(nil), ab.list...)
}

// DismissAlerts clears the alert list and returns how many were dropped.
func (v *Viewer) DismissAlerts() int {
	ab := &v.alerts
	ab.mu.Lock()
	defer ab.mu.Unlock()
	n := len(ab.list)
	ab.list = nil
	return n
}

// SubscribeAlerts returns a channel receiving every alert raised from now
// on, and a function that ends the subscription.
func (v *Viewer) SubscribeAlerts(buffer int) (<-chan Alert, func()) {
	ab := &v.alerts
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.subs == nil {
		ab.subs = map[int]chan Alert{}
	}
	id := ab.nextID
	ab.nextID++
	ch := make(chan Alert, max(buffer, 1))
	ab.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			ab.mu.Lock()
			delete(ab.subs, id)
			ab.mu.Unlock()
			close(ch)
		})
	}
}
