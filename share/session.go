package share

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Config holds the options for Open.
type Config struct {
	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// OnApplied is called with the full working set whenever a baseline has been merged
	// in, so a renderer can redraw. It may be nil.
	OnApplied func([]Entry)
}

// Session is an edit session over the membership of one share.
//
// The working set starts empty and is seeded by the first Refresh. A closed session
// discards the results of fetches and submissions that were still in flight.
type Session struct {
	source     BaselineSource
	store      *Store
	reconciler *Reconciler
	controller *Controller
	logger     logrus.FieldLogger
}

// Open starts an edit session for the share containerID.
func Open(containerID string, source BaselineSource, sink UpdateSink, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("share", containerID)

	store := NewStore()
	reconciler := NewReconciler(store, logger, cfg.OnApplied)

	return &Session{
		source:     source,
		store:      store,
		reconciler: reconciler,
		controller: NewController(containerID, store, reconciler, sink, logger),
		logger:     logger,
	}
}

// ContainerID returns the current name of the share.
func (s *Session) ContainerID() string {
	return s.controller.ContainerID()
}

// Follow switches the session to the share's new name after a rename made elsewhere.
// Pending edits are kept.
func (s *Session) Follow(name string) {
	s.logger.WithField("renamed_to", name).Info("following rename")
	s.controller.Follow(name)
}

// Refresh fetches the baseline and merges it into the working set. It returns whether
// the result was applied; a result overtaken by a newer one is dropped silently.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	if s.reconciler.Disposed() {
		return false, ErrClosed
	}

	seq := s.reconciler.Next()
	members, err := s.source.FetchMembers(ctx, s.ContainerID())
	if err != nil {
		s.logger.WithError(err).WithField("seq", seq).Warn("fetch failed")
		return false, err
	}

	return s.reconciler.Apply(seq, members), nil
}

// Add adds member to the share.
func (s *Session) Add(member Member) error {
	return s.store.Add(member)
}

// AddSelection adds a member picked by the user, aliased by its default name.
func (s *Session) AddSelection(name string, kind Kind) error {
	return s.store.Add(NewMember(name, kind))
}

// Remove removes the member called name from the share.
func (s *Session) Remove(name string) error {
	return s.store.Remove(name)
}

// Restore cancels the pending removal of the member called name.
func (s *Session) Restore(name string) error {
	return s.store.Restore(name)
}

// Snapshot returns the working set for rendering.
func (s *Session) Snapshot() []Entry {
	return s.store.Snapshot()
}

// Patch returns the pending membership changes.
func (s *Session) Patch() []Update {
	return s.store.ComputePatch()
}

// Dirty reports whether anything would change on submit.
func (s *Session) Dirty() bool {
	return s.store.Dirty() || s.controller.FieldsChanged()
}

func (s *Session) SetName(name string)       { s.controller.SetName(name) }
func (s *Session) SetOwner(owner string)     { s.controller.SetOwner(owner) }
func (s *Session) SetComment(comment string) { s.controller.SetComment(comment) }

// FieldsChanged reports whether attributes other than membership have pending changes.
func (s *Session) FieldsChanged() bool {
	return s.controller.FieldsChanged()
}

// Submit sends the pending changes. See Controller.Submit.
func (s *Session) Submit(ctx context.Context) (ContainerSnapshot, error) {
	return s.controller.Submit(ctx)
}

func (s *Session) State() State {
	return s.controller.State()
}

// Close ends the session. Results that arrive afterwards have no effect.
func (s *Session) Close() {
	s.reconciler.Dispose()
	s.logger.Info("edit session closed")
}
