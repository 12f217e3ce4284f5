package mapview

import (
	"sync"

	"github.com/dualview/dualview/mods/drawing"
)

// DrawSession is the draw state of one backend: idle, or drawing one
// geometry type. Starting while drawing cancels the running session.
type DrawSession struct {
	mu          sync.Mutex
	drawing     bool
	geomType    drawing.GeometryType
	interaction drawing.Interaction
	onEnd       DrawEndFunc
}

// Start enters the drawing state and reports whether a running session
// was cancelled to do so.
func (s *DrawSession) Start(gt drawing.GeometryType, interaction drawing.Interaction, onEnd DrawEndFunc) (cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled = s.drawing
	s.drawing = true
	s.geomType = gt
	s.interaction = interaction
	s.onEnd = onEnd
	return cancelled
}

// Cancel returns to idle and reports whether a session was running.
func (s *DrawSession) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.drawing
	s.drawing = false
	s.onEnd = nil
	return was
}

// Current reports the running session, or zero values while idle.
func (s *DrawSession) Current() (drawing.GeometryType, drawing.Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return "", "", false
	}
	return s.geomType, s.interaction, true
}

// Finish ends the running session and hands back its callback.
func (s *DrawSession) Finish() (drawing.GeometryType, drawing.Interaction, DrawEndFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return "", "", nil, false
	}
	gt, it, cb := s.geomType, s.interaction, s.onEnd
	s.drawing = false
	s.onEnd = nil
	return gt, it, cb, true
}

// Resume re-enters a session taken by Finish whose drawing was rejected.
// A session started in the meantime is left alone.
func (s *DrawSession) Resume(gt drawing.GeometryType, interaction drawing.Interaction, onEnd DrawEndFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawing {
		return false
	}
	s.drawing = true
	s.geomType = gt
	s.interaction = interaction
	s.onEnd = onEnd
	return true
}
