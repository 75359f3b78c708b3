package bot

import "sync"

// GroupSet tracks which group rooms have opted in. Membership is
// process-local; losing it on restart just means the room re-sends
// /start. The set is capped so hostile rooms cannot grow it without
// bound; eviction is arbitrary.
type GroupSet struct {
	mu     sync.Mutex
	active map[int64]struct{}
	cap    int
}

func NewGroupSet() *GroupSet {
	return &GroupSet{active: make(map[int64]struct{}), cap: 1000}
}

func (g *GroupSet) Activate(chatID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[chatID]; !ok && len(g.active) >= g.cap {
		for k := range g.active {
			delete(g.active, k)
			break
		}
	}
	g.active[chatID] = struct{}{}
}

func (g *GroupSet) Deactivate(chatID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, chatID)
}

func (g *GroupSet) Active(chatID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[chatID]
	return ok
}
