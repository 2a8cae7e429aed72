// Package remote talks to a sharepad server over a WebSocket connection.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/burntcarrot/sharepad/catalog"
	"github.com/burntcarrot/sharepad/commons"
	"github.com/burntcarrot/sharepad/share"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrConnClosed is returned for requests that cannot complete because the connection is gone.
var ErrConnClosed = errors.New("connection closed")

// Error is a failure reported by the server.
type Error struct {
	Code commons.ErrorCode
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Text)
}

// Is matches the catalog errors the code stands for.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case commons.CodeShareNotFound:
		return target == catalog.ErrShareNotFound
	case commons.CodeAlreadyExists:
		return target == catalog.ErrAlreadyExists
	case commons.CodeMemberNotFound:
		return target == catalog.ErrMemberNotFound
	case commons.CodeInvalidRequest:
		return target == catalog.ErrInvalidAction
	}
	return false
}

// Change tells that another client updated a share.
type Change struct {
	Share string

	// RenamedTo is the share's new name when the update renamed it.
	RenamedTo string
}

// Client sends requests over a WebSocket connection and matches responses by ID.
// It implements share.BaselineSource and share.UpdateSink.
type Client struct {
	conn   *websocket.Conn
	logger logrus.FieldLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uuid.UUID]chan commons.Message
	err     error

	changes chan Change
	done    chan struct{}
}

var (
	_ share.BaselineSource = (*Client)(nil)
	_ share.UpdateSink     = (*Client)(nil)
)

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, secure bool, logger logrus.FieldLogger) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	if secure {
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 2 * time.Minute,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.String(), err)
	}

	return New(conn, logger), nil
}

// New wraps an established connection and starts reading from it.
func New(conn *websocket.Conn, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: map[uuid.UUID]chan commons.Message{},
		changes: make(chan Change, 16),
		done:    make(chan struct{}),
	}
	go c.readMessages()
	return c
}

// Changes returns the shares that other clients have updated.
// The channel is closed when the connection ends.
func (c *Client) Changes() <-chan Change {
	return c.changes
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// FetchMembers returns the current members of the share called containerID.
func (c *Client) FetchMembers(ctx context.Context, containerID string) ([]share.Member, error) {
	resp, err := c.roundTrip(ctx, commons.Message{Type: commons.FetchReqMessage, Share: containerID})
	if err != nil {
		return nil, err
	}
	if resp.Members == nil {
		return []share.Member{}, nil
	}
	return resp.Members, nil
}

// SubmitPatch applies req to the share called containerID.
func (c *Client) SubmitPatch(ctx context.Context, containerID string, req share.UpdateRequest) (share.ContainerSnapshot, error) {
	resp, err := c.roundTrip(ctx, commons.Message{Type: commons.SubmitReqMessage, Share: containerID, Request: &req})
	if err != nil {
		return share.ContainerSnapshot{}, err
	}
	if resp.Snapshot == nil {
		return share.ContainerSnapshot{}, fmt.Errorf("submit %s: response without snapshot", containerID)
	}
	return *resp.Snapshot, nil
}

func (c *Client) roundTrip(ctx context.Context, msg commons.Message) (commons.Message, error) {
	msg.ID = uuid.New()
	respChan := make(chan commons.Message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return commons.Message{}, err
	}
	c.pending[msg.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	c.logger.WithFields(logrus.Fields{"type": msg.Type, "share": msg.Share, "id": msg.ID}).Debug("sending request")

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return commons.Message{}, fmt.Errorf("sending %s: %w", msg.Type, err)
	}

	select {
	case resp := <-respChan:
		if resp.Type == commons.ErrorMessage {
			return commons.Message{}, &Error{Code: resp.Code, Text: resp.Text}
		}
		return resp, nil
	case <-ctx.Done():
		return commons.Message{}, ctx.Err()
	case <-c.done:
		return commons.Message{}, ErrConnClosed
	}
}

// readMessages dispatches incoming messages until the connection fails.
func (c *Client) readMessages() {
	defer close(c.changes)
	defer close(c.done)

	for {
		var msg commons.Message

		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Errorf("websocket error: %v", err)
			}

			c.mu.Lock()
			c.err = ErrConnClosed
			c.mu.Unlock()
			return
		}

		if msg.Type == commons.ChangedMessage {
			select {
			case c.changes <- Change{Share: msg.Share, RenamedTo: msg.RenamedTo}:
			default:
				// A refresh is already queued.
			}
			continue
		}

		c.mu.Lock()
		respChan, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.WithField("id", msg.ID).Warn("response for unknown request")
			continue
		}
		select {
		case respChan <- msg:
		default:
			c.logger.WithField("id", msg.ID).Warn("duplicate response dropped")
		}
	}
}
