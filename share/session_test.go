package share

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSession_RefreshSeeds(t *testing.T) {
	source := sourceFunc(func(_ context.Context, containerID string) ([]Member, error) {
		if containerID != "sales" {
			t.Errorf("got container = %q, want sales\n", containerID)
		}
		return []Member{table("tbl.A"), table("tbl.B")}, nil
	})

	var mu sync.Mutex
	redraws := 0
	s := Open("sales", source, nil, Config{Logger: quietLogger(), OnApplied: func([]Entry) {
		mu.Lock()
		redraws++
		mu.Unlock()
	}})

	if len(s.Snapshot()) != 0 {
		t.Fatalf("new session is not empty\n")
	}

	applied, err := s.Refresh(context.Background())
	if err != nil || !applied {
		t.Fatalf("got applied = %v err = %v\n", applied, err)
	}

	want := []Entry{
		{Member: table("tbl.A"), Action: ActionUnchanged},
		{Member: table("tbl.B"), Action: ActionUnchanged},
	}
	if got := s.Snapshot(); !cmp.Equal(got, want) {
		t.Errorf("got != want, diff: %v\n", cmp.Diff(got, want))
	}
	if redraws != 1 {
		t.Errorf("got redraws = %d, want 1\n", redraws)
	}
}

func TestSession_RefreshError(t *testing.T) {
	errFetch := errors.New("fetch failed")
	source := sourceFunc(func(context.Context, string) ([]Member, error) {
		return nil, errFetch
	})
	s := Open("sales", source, nil, Config{Logger: quietLogger()})

	if _, err := s.Refresh(context.Background()); err != errFetch {
		t.Errorf("got err = %v, want %v\n", err, errFetch)
	}
}

// Two overlapping fetches where the older one answers last.
func TestSession_OutOfOrderRefresh(t *testing.T) {
	slow := make(chan struct{})
	slowStarted := make(chan struct{})
	calls := 0
	var mu sync.Mutex

	source := sourceFunc(func(context.Context, string) ([]Member, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(slowStarted)
			<-slow
			return []Member{table("tbl.OLD")}, nil
		}
		return []Member{table("tbl.NEW")}, nil
	})
	s := Open("sales", source, nil, Config{Logger: quietLogger()})

	type result struct {
		applied bool
		err     error
	}
	first := make(chan result)
	go func() {
		applied, err := s.Refresh(context.Background())
		first <- result{applied, err}
	}()

	<-slowStarted
	if applied, err := s.Refresh(context.Background()); err != nil || !applied {
		t.Fatalf("newer refresh: applied = %v err = %v\n", applied, err)
	}

	close(slow)
	if r := <-first; r.err != nil || r.applied {
		t.Errorf("older refresh: applied = %v err = %v, want dropped\n", r.applied, r.err)
	}

	want := []Entry{{Member: table("tbl.NEW"), Action: ActionUnchanged}}
	if got := s.Snapshot(); !cmp.Equal(got, want) {
		t.Errorf("got != want, diff: %v\n", cmp.Diff(got, want))
	}
}

func TestSession_CloseDiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	source := sourceFunc(func(context.Context, string) ([]Member, error) {
		close(started)
		<-release
		return []Member{table("tbl.A")}, nil
	})
	s := Open("sales", source, nil, Config{Logger: quietLogger()})

	done := make(chan bool)
	go func() {
		applied, _ := s.Refresh(context.Background())
		done <- applied
	}()

	<-started
	s.Close()
	close(release)

	if <-done {
		t.Errorf("result applied after close\n")
	}
	if len(s.Snapshot()) != 0 {
		t.Errorf("working set changed after close\n")
	}
	if _, err := s.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("got err = %v, want %v\n", err, ErrClosed)
	}
}

// Walks an edit session end to end: seed, edit, refresh, submit.
func TestSession_EditAndSubmit(t *testing.T) {
	baseline := []Member{table("main.tbl.A"), table("main.tbl.B")}
	source := sourceFunc(func(context.Context, string) ([]Member, error) {
		return baseline, nil
	})
	var got UpdateRequest
	sink := sinkFunc(func(_ context.Context, _ string, req UpdateRequest) (ContainerSnapshot, error) {
		got = req
		return ContainerSnapshot{Name: "sales", Members: []Member{table("main.tbl.B"), schema("main.sch")}}, nil
	})
	s := Open("sales", source, sink, Config{Logger: quietLogger()})

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if err := s.Remove("main.tbl.A"); err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if err := s.AddSelection("main.sch", KindSchema); err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if err := s.AddSelection("main.tbl.A", KindTable); !errors.Is(err, ErrPendingRemoval) {
		t.Errorf("got err = %v, want %v\n", err, ErrPendingRemoval)
	}
	if !s.Dirty() {
		t.Errorf("got Dirty() = false, want true\n")
	}

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("error: %v\n", err)
	}

	wantReq := UpdateRequest{Updates: []Update{
		{Action: ActionRemove, Member: table("main.tbl.A")},
		{Action: ActionAdd, Member: Member{Name: "main.sch", Kind: KindSchema, SharedAs: "sch"}},
	}}
	if !cmp.Equal(got, wantReq) {
		t.Errorf("got != want, diff: %v\n", cmp.Diff(got, wantReq))
	}

	want := []Entry{
		{Member: table("main.tbl.B"), Action: ActionUnchanged},
		{Member: schema("main.sch"), Action: ActionUnchanged},
	}
	if got := s.Snapshot(); !cmp.Equal(got, want) {
		t.Errorf("got != want, diff: %v\n", cmp.Diff(got, want))
	}
	if s.Dirty() {
		t.Errorf("got Dirty() = true after submit\n")
	}
}
