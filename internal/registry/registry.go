// Package registry is the indexed in-memory store of work items. It keeps a
// primary map plus status and assignee indexes and holds no business rules.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"coordline/internal/domain"
)

var ErrDuplicate = errors.New("work item already registered")

// Criteria is a conjunction of optional filters; nil fields match everything.
type Criteria struct {
	Status   *domain.Status
	Priority *domain.Priority
	Category *domain.Category
	Elevated *bool
	Assignee *string
}

func (c Criteria) match(w domain.WorkItem) bool {
	if c.Status != nil && w.Status != *c.Status {
		return false
	}
	if c.Priority != nil && w.Priority != *c.Priority {
		return false
	}
	if c.Category != nil && w.Category != *c.Category {
		return false
	}
	if c.Elevated != nil && w.Elevated != *c.Elevated {
		return false
	}
	if c.Assignee != nil && w.Assignee != *c.Assignee {
		return false
	}
	return true
}

type Registry struct {
	mu         sync.RWMutex
	items      map[string]domain.WorkItem
	byStatus   map[domain.Status]map[string]struct{}
	byAssignee map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		items:      make(map[string]domain.WorkItem),
		byStatus:   make(map[domain.Status]map[string]struct{}),
		byAssignee: make(map[string]map[string]struct{}),
	}
}

// Add stores a copy of item and indexes it.
func (r *Registry) Add(item domain.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, item.ID)
	}
	r.items[item.ID] = item.Clone()
	r.index(item)
	return nil
}

func (r *Registry) Get(id string) (domain.WorkItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.items[id]
	if !ok {
		return domain.WorkItem{}, false
	}
	return w.Clone(), true
}

func (r *Registry) All() []domain.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WorkItem, 0, len(r.items))
	for _, w := range r.items {
		out = append(out, w.Clone())
	}
	sortItems(out)
	return out
}

func (r *Registry) ByStatus(status domain.Status) []domain.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byStatus[status])
}

func (r *Registry) ByAssignee(assignee string) []domain.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byAssignee[assignee])
}

// CountByStatus reads the status index size without copying items.
func (r *Registry) CountByStatus(status domain.Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byStatus[status])
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Update replaces a stored item. Index buckets move in the same critical
// section as the primary map write. Returns false for unknown ids.
func (r *Registry) Update(item domain.WorkItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.items[item.ID]
	if !ok {
		return false
	}
	r.unindex(old)
	r.items[item.ID] = item.Clone()
	r.index(item)
	return true
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.items[id]
	if !ok {
		return false
	}
	r.unindex(old)
	delete(r.items, id)
	return true
}

// Search scans every item. Fine for hundreds to low thousands of entries.
func (r *Registry) Search(c Criteria) []domain.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WorkItem
	for _, w := range r.items {
		if c.match(w) {
			out = append(out, w.Clone())
		}
	}
	sortItems(out)
	return out
}

func (r *Registry) index(w domain.WorkItem) {
	bucket(r.byStatus, w.Status)[w.ID] = struct{}{}
	bucket(r.byAssignee, w.Assignee)[w.ID] = struct{}{}
}

func (r *Registry) unindex(w domain.WorkItem) {
	drop(r.byStatus, w.Status, w.ID)
	drop(r.byAssignee, w.Assignee, w.ID)
}

func (r *Registry) collect(ids map[string]struct{}) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(ids))
	for id := range ids {
		out = append(out, r.items[id].Clone())
	}
	sortItems(out)
	return out
}

func bucket[K comparable](idx map[K]map[string]struct{}, key K) map[string]struct{} {
	b, ok := idx[key]
	if !ok {
		b = make(map[string]struct{})
		idx[key] = b
	}
	return b
}

func drop[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	b, ok := idx[key]
	if !ok {
		return
	}
	delete(b, id)
	if len(b) == 0 {
		delete(idx, key)
	}
}

func sortItems(items []domain.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
