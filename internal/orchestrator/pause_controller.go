package orchestrator

import (
	"log"
	"sync"
)

// PauseController holds the pause state for queue driving.
// While paused, the driver keeps auto-resuming reviewed tasks but claims
// nothing new. It is safe for concurrent use.
type PauseController struct {
	mu     sync.RWMutex
	paused bool
}

// NewPauseController creates a new, unpaused PauseController.
func NewPauseController() *PauseController {
	return &PauseController{}
}

// Pause stops new tasks from being claimed.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		log.Printf("[orchestrator] paused - no new tasks will be claimed")
	}
}

// Resume allows tasks to be claimed again.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		log.Printf("[orchestrator] resumed - task claiming enabled")
	}
}

// IsPaused returns whether claiming is currently paused.
// A nil controller is never paused.
func (p *PauseController) IsPaused() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}
