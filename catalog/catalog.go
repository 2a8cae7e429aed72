// Package catalog keeps the authoritative state of every share served by the server.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/burntcarrot/sharepad/share"
	"gopkg.in/yaml.v3"
)

var (
	ErrShareNotFound  = errors.New("share not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrMemberNotFound = errors.New("member not found")
	ErrInvalidAction  = errors.New("invalid action")
)

// Share is the stored form of a share.
type Share struct {
	Name    string         `yaml:"name"`
	Owner   string         `yaml:"owner,omitempty"`
	Comment string         `yaml:"comment,omitempty"`
	Members []share.Member `yaml:"members"`
}

// Catalog holds shares by name. It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	shares map[string]Share

	// now stamps newly added members.
	now func() time.Time
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{shares: map[string]Share{}, now: time.Now}
}

// Load reads shares from a YAML seed document of the form:
//
//	shares:
//	  - name: sales
//	    owner: finance
//	    members:
//	      - name: main.sales.orders
//	        kind: TABLE
func Load(r io.Reader) (*Catalog, error) {
	var seed struct {
		Shares []Share `yaml:"shares"`
	}
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}

	c := New()
	for _, s := range seed.Shares {
		for i, m := range s.Members {
			if m.SharedAs == "" {
				s.Members[i].SharedAs = share.DefaultSharedAs(m.Name)
			}
		}
		if err := c.Put(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Put stores a new share.
func (c *Catalog) Put(s Share) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.shares[s.Name]; ok {
		return fmt.Errorf("share %q: %w", s.Name, ErrAlreadyExists)
	}

	seen := map[string]bool{}
	for _, m := range s.Members {
		if seen[m.Name] {
			return fmt.Errorf("share %q member %q: %w", s.Name, m.Name, ErrAlreadyExists)
		}
		seen[m.Name] = true
	}

	s.Members = copyMembers(s.Members)
	c.shares[s.Name] = s
	return nil
}

// Names returns the names of all shares, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.shares))
	for name := range c.shares {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the current state of the share called name.
func (c *Catalog) Get(name string) (share.ContainerSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.shares[name]
	if !ok {
		return share.ContainerSnapshot{}, fmt.Errorf("share %q: %w", name, ErrShareNotFound)
	}
	return snapshot(s), nil
}

// Update applies req to the share called name and returns its new state.
//
// Adding a member that is already shared fails, as does updating one that is not.
// Removing a member that is not shared is a no-op. Name, owner and comment keep their
// current values unless req sets them. Either every update applies or none does.
func (c *Catalog) Update(name string, req share.UpdateRequest) (share.ContainerSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.shares[name]
	if !ok {
		return share.ContainerSnapshot{}, fmt.Errorf("share %q: %w", name, ErrShareNotFound)
	}

	members := newMemberList(current.Members)
	for _, u := range req.Updates {
		m := u.Member
		switch u.Action {
		case share.ActionAdd:
			if members.has(m.Name) {
				return share.ContainerSnapshot{}, fmt.Errorf("member %q: %w", m.Name, ErrAlreadyExists)
			}
			if len(m.Payload) == 0 {
				m.Payload = c.addedPayload()
			}
			members.set(m)
		case share.ActionRemove:
			members.remove(m.Name)
		case share.ActionUpdate:
			if !members.has(m.Name) {
				return share.ContainerSnapshot{}, fmt.Errorf("member %q: %w", m.Name, ErrMemberNotFound)
			}
			members.set(m)
		default:
			return share.ContainerSnapshot{}, fmt.Errorf("member %q action %v: %w", m.Name, u.Action, ErrInvalidAction)
		}
	}

	next := Share{
		Name:    valueOr(req.Fields.NewName, current.Name),
		Owner:   valueOr(req.Fields.Owner, current.Owner),
		Comment: valueOr(req.Fields.Comment, current.Comment),
		Members: members.list(),
	}
	if next.Name != name {
		if _, taken := c.shares[next.Name]; taken {
			return share.ContainerSnapshot{}, fmt.Errorf("share %q: %w", next.Name, ErrAlreadyExists)
		}
		delete(c.shares, name)
	}
	c.shares[next.Name] = next

	return snapshot(next), nil
}

func (c *Catalog) addedPayload() json.RawMessage {
	data, _ := json.Marshal(map[string]int64{"added_at": c.now().UnixMilli()})
	return data
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func snapshot(s Share) share.ContainerSnapshot {
	return share.ContainerSnapshot{
		Name:    s.Name,
		Owner:   s.Owner,
		Comment: s.Comment,
		Members: copyMembers(s.Members),
	}
}

func copyMembers(members []share.Member) []share.Member {
	out := make([]share.Member, len(members))
	copy(out, members)
	return out
}

// memberList is an ordered, name-keyed list of members.
type memberList struct {
	order   []string
	members map[string]share.Member
}

func newMemberList(members []share.Member) *memberList {
	l := &memberList{members: make(map[string]share.Member, len(members))}
	for _, m := range members {
		l.set(m)
	}
	return l
}

func (l *memberList) has(name string) bool {
	_, ok := l.members[name]
	return ok
}

func (l *memberList) set(m share.Member) {
	if !l.has(m.Name) {
		l.order = append(l.order, m.Name)
	}
	l.members[m.Name] = m
}

func (l *memberList) remove(name string) {
	if !l.has(name) {
		return
	}
	delete(l.members, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *memberList) list() []share.Member {
	out := make([]share.Member, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.members[name])
	}
	return out
}
