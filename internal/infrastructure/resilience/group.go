package resilience

import (
	"sort"
	"sync"
)

// Group lazily creates one breaker per key, all sharing the same settings.
type Group struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates an empty group.
func NewGroup(settings Settings) *Group {
	return &Group{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it closed on first use.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// Remove forgets key.
func (g *Group) Remove(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.breakers, key)
}

// Snapshot is the state of one breaker in a group.
type Snapshot struct {
	Key    string `json:"key"`
	State  string `json:"state"`
	Counts Counts `json:"counts"`
}

// Snapshots lists every breaker sorted by key.
func (g *Group) Snapshots() []Snapshot {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, Snapshot{Key: b.Name(), State: b.State().String(), Counts: b.Counts()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
