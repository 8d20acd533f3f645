package orchestrator

import (
	"sort"
	"sync"

	"github.com/ShayCichocki/conductor/internal/agent"
)

// AgentRegistry maps agent IDs to executors.
// It provides thread-safe registration and lookup.
type AgentRegistry struct {
	// agents maps agent IDs to executors.
	agents map[string]agent.Executor
	// mu protects all fields.
	mu sync.RWMutex
}

// NewAgentRegistry creates a new AgentRegistry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]agent.Executor),
	}
}

// Register adds or replaces an agent.
func (r *AgentRegistry) Register(id string, exec agent.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[id] = exec
}

// Get retrieves an agent by ID.
func (r *AgentRegistry) Get(id string) (agent.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.agents[id]
	return exec, ok
}

// Unregister removes an agent from the registry.
func (r *AgentRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// IDs returns all registered agent IDs in sorted order.
func (r *AgentRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
