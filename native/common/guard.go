package common

import (
	"errors"
	"fmt"
	"sync"
)

// ErrModulePaused is returned by Guard when an operator has halted the module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module currently rejects mutations.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when the module is paused. A nil view never
// pauses anything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PauseSet is a mutable PauseView used by long running daemons so operators
// can flip a module without restarting.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(initial map[string]bool) *PauseSet {
	set := &PauseSet{paused: make(map[string]bool, len(initial))}
	for module, paused := range initial {
		if paused {
			set.paused[module] = true
		}
	}
	return set
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Set pauses or resumes the module.
func (s *PauseSet) Set(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[module] = true
		return
	}
	delete(s.paused, module)
}

// Snapshot returns the currently paused modules.
func (s *PauseSet) Snapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.paused))
	for module := range s.paused {
		out[module] = true
	}
	return out
}
