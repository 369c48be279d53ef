package jobs

import (
	"sort"
	"sync"
)

// Action names the provider lifecycle events carried by the queue
type Action string

const (
	ActionAdded             Action = "added"
	ActionEnabled           Action = "enabled"
	ActionCategoriesChanged Action = "categories-changed"
	ActionDeleted           Action = "deleted"
)

// ParseAction validates an action name from the wire
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionAdded, ActionEnabled, ActionCategoriesChanged, ActionDeleted:
		return Action(s), true
	}
	return "", false
}

// Queue is the in-process action queue feeding event jobs. It is not
// persisted; after a restart the timer jobs re-cover anything lost.
type Queue struct {
	mu      sync.Mutex
	actions map[Action]map[string]struct{}
}

// NewQueue creates an empty action queue
func NewQueue() *Queue {
	return &Queue{actions: make(map[Action]map[string]struct{})}
}

// Enqueue records a provider id under an action. Duplicate ids collapse.
func (q *Queue) Enqueue(action Action, providerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids, ok := q.actions[action]
	if !ok {
		ids = make(map[string]struct{})
		q.actions[action] = ids
	}
	ids[providerID] = struct{}{}
}

// Drain atomically removes and returns the provider ids of one action
func (q *Queue) Drain(action Action) []string {
	q.mu.Lock()
	ids := q.actions[action]
	delete(q.actions, action)
	q.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	drained := make([]string, 0, len(ids))
	for id := range ids {
		drained = append(drained, id)
	}
	sort.Strings(drained)
	return drained
}
