package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/burntcarrot/sharepad/catalog"
	"github.com/burntcarrot/sharepad/commons"
	"github.com/burntcarrot/sharepad/share"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestServer serves a WebSocket endpoint answering every request with reply.
// A nil response from reply leaves the request unanswered.
func newTestServer(t *testing.T, reply func(conn *websocket.Conn, req commons.Message) *commons.Message) (*Client, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var req commons.Message
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if resp := reply(conn, req); resp != nil {
				resp.ID = req.ID
				_ = conn.WriteJSON(resp)
			}
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, strings.TrimPrefix(server.URL, "http://"), false, quietLogger())
	if err != nil {
		server.Close()
		t.Fatalf("dial: %v", err)
	}

	return client, func() {
		_ = client.Close()
		server.Close()
	}
}

func TestFetchMembers(t *testing.T) {
	members := []share.Member{share.NewMember("main.sales.orders", share.KindTable)}
	client, cleanup := newTestServer(t, func(_ *websocket.Conn, req commons.Message) *commons.Message {
		if req.Type != commons.FetchReqMessage || req.Share != "sales" {
			return &commons.Message{Type: commons.ErrorMessage, Code: commons.CodeInvalidRequest, Text: "unexpected"}
		}
		return &commons.Message{Type: commons.FetchRespMessage, Share: "sales", Members: members}
	})
	defer cleanup()

	got, err := client.FetchMembers(context.Background(), "sales")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if !cmp.Equal(got, members) {
		t.Errorf("got != want, diff: %v\n", cmp.Diff(got, members))
	}
}

func TestFetchMembers_EmptyShare(t *testing.T) {
	client, cleanup := newTestServer(t, func(_ *websocket.Conn, req commons.Message) *commons.Message {
		return &commons.Message{Type: commons.FetchRespMessage, Share: req.Share}
	})
	defer cleanup()

	got, err := client.FetchMembers(context.Background(), "empty")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil list\n", got)
	}
}

func TestSubmitPatch(t *testing.T) {
	requests := make(chan share.UpdateRequest, 1)
	client, cleanup := newTestServer(t, func(_ *websocket.Conn, req commons.Message) *commons.Message {
		requests <- *req.Request
		return &commons.Message{Type: commons.SubmitRespMessage, Snapshot: &share.ContainerSnapshot{
			Name:    req.Share,
			Members: []share.Member{share.NewMember("main.sales.customers", share.KindTable)},
		}}
	})
	defer cleanup()

	comment := "q3"
	req := share.UpdateRequest{
		Updates: []share.Update{{Action: share.ActionRemove, Member: share.NewMember("main.sales.orders", share.KindTable)}},
		Fields:  share.FieldChanges{Comment: &comment},
	}

	got, err := client.SubmitPatch(context.Background(), "sales", req)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}

	if gotReq := <-requests; !cmp.Equal(gotReq, req) {
		t.Errorf("request got != want, diff: %v\n", cmp.Diff(gotReq, req))
	}
	want := share.ContainerSnapshot{Name: "sales", Members: []share.Member{share.NewMember("main.sales.customers", share.KindTable)}}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want, diff: %v\n", cmp.Diff(got, want))
	}
}

func TestSubmitPatch_ServerError(t *testing.T) {
	client, cleanup := newTestServer(t, func(_ *websocket.Conn, req commons.Message) *commons.Message {
		return &commons.Message{Type: commons.ErrorMessage, Code: commons.CodeAlreadyExists, Text: `member "x": already exists`}
	})
	defer cleanup()

	_, err := client.SubmitPatch(context.Background(), "sales", share.UpdateRequest{})

	var remoteErr *Error
	if !errors.As(err, &remoteErr) || remoteErr.Code != commons.CodeAlreadyExists {
		t.Fatalf("got err = %v, want *Error with %s\n", err, commons.CodeAlreadyExists)
	}
	if !errors.Is(err, catalog.ErrAlreadyExists) {
		t.Errorf("got err = %v, want it to match catalog.ErrAlreadyExists\n", err)
	}
}

func TestRoundTrip_ContextCancelled(t *testing.T) {
	client, cleanup := newTestServer(t, func(*websocket.Conn, commons.Message) *commons.Message {
		return nil
	})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.FetchMembers(ctx, "sales"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got err = %v, want %v\n", err, context.DeadlineExceeded)
	}
}

func TestChanges(t *testing.T) {
	client, cleanup := newTestServer(t, func(conn *websocket.Conn, req commons.Message) *commons.Message {
		_ = conn.WriteJSON(commons.Message{Type: commons.ChangedMessage, Share: "sales", RenamedTo: "revenue"})
		return &commons.Message{Type: commons.FetchRespMessage}
	})
	defer cleanup()

	if _, err := client.FetchMembers(context.Background(), "sales"); err != nil {
		t.Fatalf("error: %v\n", err)
	}

	select {
	case got := <-client.Changes():
		want := Change{Share: "sales", RenamedTo: "revenue"}
		if got != want {
			t.Errorf("got change %+v, want %+v\n", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Errorf("no change notification received\n")
	}
}

func TestConnClosed(t *testing.T) {
	client, cleanup := newTestServer(t, func(conn *websocket.Conn, _ commons.Message) *commons.Message {
		conn.Close()
		return nil
	})
	defer cleanup()

	if _, err := client.FetchMembers(context.Background(), "sales"); !errors.Is(err, ErrConnClosed) {
		t.Errorf("got err = %v, want %v\n", err, ErrConnClosed)
	}

	<-client.Done()
	if _, err := client.FetchMembers(context.Background(), "sales"); !errors.Is(err, ErrConnClosed) {
		t.Errorf("after close: got err = %v, want %v\n", err, ErrConnClosed)
	}
}
