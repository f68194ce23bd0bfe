package polling

import (
	"iter"
	"slices"
	"sync"
	"time"
)

// TrackedTask is the schedule of one task awaiting a terminal outcome.
type TrackedTask struct {
	TaskID       string
	NextPollAt   time.Time
	CurrentDelay time.Duration
	RetryCount   int
}

// Registry is the set of tracked tasks, keyed by task id.
// It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	tasks        map[string]TrackedTask
	initialDelay time.Duration
}

// NewRegistry creates an empty Registry whose new entries first become due
// initialDelay after registration.
func NewRegistry(initialDelay time.Duration) *Registry {
	return &Registry{
		tasks:        make(map[string]TrackedTask),
		initialDelay: initialDelay,
	}
}

// Register starts tracking taskID unless it is already tracked. It reports
// whether a new entry was inserted.
func (r *Registry) Register(taskID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; ok {
		return false
	}
	r.tasks[taskID] = TrackedTask{
		TaskID:       taskID,
		NextPollAt:   now.Add(r.initialDelay),
		CurrentDelay: r.initialDelay,
	}
	return true
}

// Due yields the entries whose NextPollAt is not after now, earliest first.
// Each iteration works on its own snapshot, so callers may mutate the
// registry while ranging.
func (r *Registry) Due(now time.Time) iter.Seq[TrackedTask] {
	return func(yield func(TrackedTask) bool) {
		r.mu.RLock()
		due := make([]TrackedTask, 0, len(r.tasks))
		for _, t := range r.tasks {
			if !t.NextPollAt.After(now) {
				due = append(due, t)
			}
		}
		r.mu.RUnlock()

		slices.SortFunc(due, func(a, b TrackedTask) int {
			if c := a.NextPollAt.Compare(b.NextPollAt); c != 0 {
				return c
			}
			if a.TaskID < b.TaskID {
				return -1
			}
			if a.TaskID > b.TaskID {
				return 1
			}
			return 0
		})

		for _, t := range due {
			if !yield(t) {
				return
			}
		}
	}
}

// Reschedule replaces the entry for t.TaskID. It never re-adds a removed
// entry and reports whether the entry existed.
func (r *Registry) Reschedule(t TrackedTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.TaskID]; !ok {
		return false
	}
	r.tasks[t.TaskID] = t
	return true
}

// Remove stops tracking taskID. Removing an absent id is a no-op.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// Get returns the entry for taskID.
func (r *Registry) Get(taskID string) (TrackedTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	return t, ok
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// TaskIDs returns the tracked task ids in sorted order.
func (r *Registry) TaskIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.tasks)
}
