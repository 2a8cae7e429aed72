package share

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Reconcile folds a freshly fetched baseline into current and returns the merged set.
// current is not modified.
//
// Local edits win: an entry with a pending action keeps its action and payload even when
// the baseline carries a newer version of the same member. Unchanged entries take the
// baseline's payload, and unchanged entries missing from the baseline are dropped since
// they were removed upstream. Members new to the baseline are appended as unchanged.
func Reconcile(current *WorkingSet, baseline []Member) *WorkingSet {
	changed := current.Changed()

	incoming := make(map[string]Member, len(baseline))
	for _, m := range baseline {
		incoming[m.Name] = m
	}

	next := NewWorkingSet()
	for _, e := range current.Entries() {
		if _, ok := changed[e.Member.Name]; ok {
			next.put(e)
			continue
		}
		if m, ok := incoming[e.Member.Name]; ok {
			next.put(Entry{Member: m, Action: ActionUnchanged})
		}
	}

	for _, m := range baseline {
		if _, ok := next.Get(m.Name); ok {
			continue
		}
		next.put(Entry{Member: m, Action: ActionUnchanged})
	}

	return next
}

// acknowledge clears the pending actions that the remote source has accepted.
// Entries edited again after the patch was computed keep their new action, including a
// member that was removed and added back with different attributes.
func acknowledge(current *WorkingSet, submitted []Update) *WorkingSet {
	next := current.clone()
	for _, u := range submitted {
		e, ok := next.Get(u.Member.Name)
		if !ok || e.Action != u.Action || !e.Member.Equal(u.Member) {
			continue
		}
		e.Action = ActionUnchanged
		next.put(e)
	}
	return next
}

// Reconciler applies baseline results to a Store in issue order.
//
// Each fetch is stamped with Next before it is issued. A result whose stamp is older than
// the last applied one is dropped, so a slow response never overwrites newer state.
// After Dispose every result is dropped.
type Reconciler struct {
	store     *Store
	logger    logrus.FieldLogger
	onApplied func([]Entry)

	mu       sync.Mutex
	issued   uint64
	applied  uint64
	baseline []Member
	disposed bool
}

// NewReconciler returns a reconciler writing into store.
// onApplied may be nil; it is called after every applied baseline, outside of any lock.
func NewReconciler(store *Store, logger logrus.FieldLogger, onApplied func([]Entry)) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{store: store, logger: logger, onApplied: onApplied}
}

// Next stamps a new fetch.
func (r *Reconciler) Next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.issued++
	return r.issued
}

// Applied returns the sequence number of the last applied baseline.
func (r *Reconciler) Applied() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.applied
}

// Apply merges baseline into the store. It reports whether the baseline was applied.
func (r *Reconciler) Apply(seq uint64, baseline []Member) bool {
	r.mu.Lock()

	log := r.logger.WithField("seq", seq)
	if r.disposed {
		r.mu.Unlock()
		log.Debug("session disposed, baseline discarded")
		return false
	}
	if applied := r.applied; seq < applied {
		r.mu.Unlock()
		log.WithField("applied", applied).Debug("stale reconciliation dropped")
		return false
	}

	entries := r.store.swap(func(current *WorkingSet) *WorkingSet {
		return Reconcile(current, baseline)
	})
	r.applied = seq
	r.baseline = baseline
	r.mu.Unlock()

	log.WithField("entries", len(entries)).Info("baseline applied")
	r.notify(entries)
	return true
}

// Reanchor applies the post-submit baseline, first clearing the actions of the
// submitted patch that are still pending locally.
//
// The acknowledgement is never dropped. If a newer baseline was applied while the
// submission was in flight, the acknowledged set is merged with that baseline instead.
func (r *Reconciler) Reanchor(seq uint64, baseline []Member, submitted []Update) bool {
	r.mu.Lock()

	log := r.logger.WithField("seq", seq)
	if r.disposed {
		r.mu.Unlock()
		log.Debug("session disposed, re-anchor discarded")
		return false
	}

	if seq < r.applied {
		log.WithField("applied", r.applied).Debug("post-submit baseline superseded")
		baseline = r.baseline
	} else {
		r.applied = seq
		r.baseline = baseline
	}

	entries := r.store.swap(func(current *WorkingSet) *WorkingSet {
		return Reconcile(acknowledge(current, submitted), baseline)
	})
	r.mu.Unlock()

	log.WithField("entries", len(entries)).Info("working set re-anchored")
	r.notify(entries)
	return true
}

func (r *Reconciler) notify(entries []Entry) {
	if r.onApplied != nil {
		r.onApplied(entries)
	}
}

// Dispose stops the reconciler from applying any further result.
func (r *Reconciler) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disposed = true
}

// Disposed reports whether Dispose was called.
func (r *Reconciler) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.disposed
}
