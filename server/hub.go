package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/burntcarrot/sharepad/catalog"
	"github.com/burntcarrot/sharepad/commons"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// envelope is a message together with the connection it arrived on.
type envelope struct {
	conn *websocket.Conn
	msg  commons.Message
}

// hub serves share requests from every connected client.
//
// Connections are only read from in handleConn; all writes happen on the goroutine
// running run, so each connection has a single writer.
type hub struct {
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader

	// activeClients maps currently active connections to their client IDs.
	mu            sync.Mutex
	activeClients map[*websocket.Conn]uuid.UUID

	// messageChan carries client requests to run.
	messageChan chan envelope
}

func newHub(c *catalog.Catalog) *hub {
	return &hub{
		catalog:       c,
		activeClients: map[*websocket.Conn]uuid.UUID{},
		messageChan:   make(chan envelope),
	}
}

// handleConn upgrades the connection, registers it and forwards its messages to run.
func (h *hub) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection to websocket: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.New()
	h.mu.Lock()
	h.activeClients[conn] = id
	h.mu.Unlock()
	color.Yellow("%s >> client %v connected\n", timestamp(), id)

	for {
		var msg commons.Message

		err := conn.ReadJSON(&msg)
		if err != nil {
			color.Yellow("%s >> closing connection with ID: %v\n", timestamp(), id)
			h.mu.Lock()
			delete(h.activeClients, conn)
			h.mu.Unlock()
			return
		}

		select {
		case h.messageChan <- envelope{conn: conn, msg: msg}:
		case <-r.Context().Done():
			return
		}
	}
}

// run answers requests until ctx is done.
func (h *hub) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-h.messageChan:
			h.handleMsg(env)
		}
	}
}

// handleMsg answers a single request and, after a successful submit, tells every other
// client that the share changed.
func (h *hub) handleMsg(env envelope) {
	req := env.msg
	resp := h.respond(req)
	resp.ID = req.ID

	if resp.Type == commons.ErrorMessage {
		color.Red("%s >> %s %s failed: %s\n", timestamp(), req.Type, req.Share, resp.Text)
	} else {
		color.Green("%s >> %s %s\n", timestamp(), req.Type, req.Share)
	}

	h.send(env.conn, resp)

	if resp.Type != commons.SubmitRespMessage {
		return
	}

	notice := commons.Message{Type: commons.ChangedMessage, Share: req.Share}
	// Clients editing the old name follow a rename.
	if resp.Snapshot.Name != req.Share {
		notice.RenamedTo = resp.Snapshot.Name
	}
	h.broadcast(env.conn, notice)
}

func (h *hub) respond(req commons.Message) commons.Message {
	switch req.Type {
	case commons.FetchReqMessage:
		snapshot, err := h.catalog.Get(req.Share)
		if err != nil {
			return errorMessage(err)
		}
		return commons.Message{Type: commons.FetchRespMessage, Share: snapshot.Name, Members: snapshot.Members}

	case commons.SubmitReqMessage:
		if req.Request == nil {
			return commons.Message{Type: commons.ErrorMessage, Code: commons.CodeInvalidRequest, Text: "submit without request"}
		}
		snapshot, err := h.catalog.Update(req.Share, *req.Request)
		if err != nil {
			return errorMessage(err)
		}
		return commons.Message{Type: commons.SubmitRespMessage, Share: snapshot.Name, Snapshot: &snapshot}
	}

	return commons.Message{Type: commons.ErrorMessage, Code: commons.CodeInvalidRequest, Text: "unknown message type " + string(req.Type)}
}

// send writes msg to conn, dropping the client if the write fails.
func (h *hub) send(conn *websocket.Conn, msg commons.Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message to client: %v", err)
		conn.Close()
		h.mu.Lock()
		delete(h.activeClients, conn)
		h.mu.Unlock()
	}
}

// broadcast sends msg to every active client except origin.
func (h *hub) broadcast(origin *websocket.Conn, msg commons.Message) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.activeClients))
	for conn := range h.activeClients {
		if conn != origin {
			clients = append(clients, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range clients {
		h.send(conn, msg)
	}
}

func errorMessage(err error) commons.Message {
	code := commons.CodeInternal
	switch {
	case errors.Is(err, catalog.ErrShareNotFound):
		code = commons.CodeShareNotFound
	case errors.Is(err, catalog.ErrAlreadyExists):
		code = commons.CodeAlreadyExists
	case errors.Is(err, catalog.ErrMemberNotFound):
		code = commons.CodeMemberNotFound
	case errors.Is(err, catalog.ErrInvalidAction):
		code = commons.CodeInvalidRequest
	}
	return commons.Message{Type: commons.ErrorMessage, Code: code, Text: err.Error()}
}

func timestamp() string {
	return time.Now().Format(time.ANSIC)
}
