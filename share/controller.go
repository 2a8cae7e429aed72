package share

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// BaselineSource fetches the authoritative member list of a share.
type BaselineSource interface {
	FetchMembers(ctx context.Context, containerID string) ([]Member, error)
}

// UpdateSink applies an update request to a share and returns its new state.
type UpdateSink interface {
	SubmitPatch(ctx context.Context, containerID string, req UpdateRequest) (ContainerSnapshot, error)
}

// State represents the state of a Controller.
type State int

const (
	StateIdle State = iota
	StateSubmitting
)

func (s State) String() string {
	if s == StateSubmitting {
		return "submitting"
	}
	return "idle"
}

// Controller submits the pending changes of a Store and re-anchors it on success.
type Controller struct {
	store      *Store
	reconciler *Reconciler
	sink       UpdateSink
	logger     logrus.FieldLogger

	mu          sync.Mutex
	state       State
	containerID string
	fields      FieldChanges
}

// NewController returns an idle controller for the share containerID.
func NewController(containerID string, store *Store, reconciler *Reconciler, sink UpdateSink, logger logrus.FieldLogger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		store:       store,
		reconciler:  reconciler,
		sink:        sink,
		logger:      logger,
		containerID: containerID,
	}
}

// ContainerID returns the name of the share. It follows renames after a successful submit.
func (c *Controller) ContainerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.containerID
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// SetName renames the share on the next submit.
func (c *Controller) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fields.NewName = &name
}

// SetOwner changes the owner of the share on the next submit.
func (c *Controller) SetOwner(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fields.Owner = &owner
}

// SetComment changes the comment of the share on the next submit.
func (c *Controller) SetComment(comment string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fields.Comment = &comment
}

// Follow points the controller at the share's new name after someone else renamed it.
func (c *Controller) Follow(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.containerID = name
}

// Fields returns the pending changes to the share's own attributes.
func (c *Controller) Fields() FieldChanges {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fields
}

// FieldsChanged reports whether attributes other than membership have pending changes.
func (c *Controller) FieldsChanged() bool {
	return c.Fields().Changed()
}

// Submit sends the pending patch together with the pending field changes.
//
// The request is sent even when the patch is empty. On success the working set is
// re-anchored to the returned member list. On failure the working set is left as it was
// and the sink's error is returned as is.
func (c *Controller) Submit(ctx context.Context) (ContainerSnapshot, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return ContainerSnapshot{}, ErrConcurrentSubmission
	}
	if c.reconciler.Disposed() {
		c.mu.Unlock()
		return ContainerSnapshot{}, ErrClosed
	}
	c.state = StateSubmitting
	containerID := c.containerID
	fields := c.fields
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	patch := c.store.ComputePatch()
	log := c.logger.WithFields(logrus.Fields{"share": containerID, "updates": len(patch)})
	log.Info("submitting patch")

	snapshot, err := c.sink.SubmitPatch(ctx, containerID, UpdateRequest{Updates: patch, Fields: fields})
	if err != nil {
		log.WithError(err).Warn("submit failed")
		return ContainerSnapshot{}, err
	}

	// Stamped after the response, so fetches issued before it can no longer apply.
	seq := c.reconciler.Next()
	if !c.reconciler.Reanchor(seq, snapshot.Members, patch) {
		log.Debug("session closed during submit")
		return snapshot, nil
	}

	c.mu.Lock()
	if snapshot.Name != "" {
		c.containerID = snapshot.Name
	}
	c.fields = clearSubmitted(c.fields, fields)
	c.mu.Unlock()

	log.Info("submit succeeded")
	return snapshot, nil
}

// clearSubmitted drops the field changes that were part of the submitted request.
// A field set again while the request was in flight is kept.
func clearSubmitted(current, submitted FieldChanges) FieldChanges {
	if current.NewName == submitted.NewName {
		current.NewName = nil
	}
	if current.Owner == submitted.Owner {
		current.Owner = nil
	}
	if current.Comment == submitted.Comment {
		current.Comment = nil
	}
	return current
}
