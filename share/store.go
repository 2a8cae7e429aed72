package share

import "sync"

// Store holds the local working set of an edit session.
// Every operation is all-or-nothing; a failed call leaves the working set untouched.
type Store struct {
	mu sync.Mutex
	ws *WorkingSet
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{ws: NewWorkingSet()}
}

// Add inserts member with a pending ADD.
func (s *Store) Add(member Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.ws.Get(member.Name); ok {
		if e.Action == ActionRemove {
			return &MemberError{Op: "add", Name: member.Name, Err: ErrPendingRemoval}
		}
		return &MemberError{Op: "add", Name: member.Name, Err: ErrDuplicateMember}
	}

	s.ws.put(Entry{Member: member, Action: ActionAdd})
	return nil
}

// Remove marks the member for removal. A member that was only added locally is dropped.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ws.Get(name)
	if !ok {
		return &MemberError{Op: "remove", Name: name, Err: ErrNotFound}
	}

	// An added member is absent from the baseline, so there is nothing to remove remotely.
	if e.Action == ActionAdd {
		s.ws.delete(name)
		return nil
	}

	e.Action = ActionRemove
	s.ws.put(e)
	return nil
}

// Restore cancels a pending removal.
func (s *Store) Restore(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ws.Get(name)
	if !ok {
		return &MemberError{Op: "restore", Name: name, Err: ErrNotFound}
	}
	if e.Action != ActionRemove {
		return &MemberError{Op: "restore", Name: name, Err: ErrInvalidState}
	}

	e.Action = ActionUnchanged
	s.ws.put(e)
	return nil
}

// ComputePatch returns the pending changes of the working set. It never contains
// unchanged entries.
func (s *Store) ComputePatch() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	return computePatch(s.ws)
}

func computePatch(ws *WorkingSet) []Update {
	patch := []Update{}
	for _, e := range ws.Entries() {
		if e.Action == ActionUnchanged {
			continue
		}
		patch = append(patch, Update{Action: e.Action, Member: e.Member})
	}
	return patch
}

// Snapshot returns a copy of every entry in the working set.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ws.Entries()
}

// Get returns the entry for name.
func (s *Store) Get(name string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ws.Get(name)
	e.Member = e.Member.clone()
	return e, ok
}

// Len returns the number of entries in the working set.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ws.Len()
}

// Dirty reports whether the working set has pending changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ws.Changed()) > 0
}

// swap replaces the working set with the result of fn, holding the lock for the
// whole computation so no reader observes a partially merged set.
func (s *Store) swap(fn func(current *WorkingSet) *WorkingSet) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ws = fn(s.ws)
	return s.ws.Entries()
}
