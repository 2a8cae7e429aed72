package share

import "container/list"

// WorkingSet maps member names to entries, iterating in insertion order.
// The zero value is not usable; create one with NewWorkingSet.
type WorkingSet struct {
	index map[string]*list.Element
	order *list.List
}

// NewWorkingSet returns a working set seeded with entries, in order.
// Later entries replace earlier ones with the same name.
func NewWorkingSet(entries ...Entry) *WorkingSet {
	ws := &WorkingSet{index: map[string]*list.Element{}, order: list.New()}
	for _, e := range entries {
		ws.put(e)
	}
	return ws
}

// Len returns the number of entries.
func (ws *WorkingSet) Len() int {
	return ws.order.Len()
}

// Get returns the entry for name.
func (ws *WorkingSet) Get(name string) (Entry, bool) {
	el, ok := ws.index[name]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}

// Entries returns a copy of all entries in iteration order. Payloads are copied too, so
// callers may modify the result freely.
func (ws *WorkingSet) Entries() []Entry {
	out := make([]Entry, 0, ws.order.Len())
	for el := ws.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(Entry)
		e.Member = e.Member.clone()
		out = append(out, e)
	}
	return out
}

// Changed returns the names of entries with a pending action.
func (ws *WorkingSet) Changed() map[string]Action {
	changed := map[string]Action{}
	for el := ws.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(Entry)
		if e.Action != ActionUnchanged {
			changed[e.Member.Name] = e.Action
		}
	}
	return changed
}

// put inserts e, or replaces the existing entry in place.
func (ws *WorkingSet) put(e Entry) {
	if el, ok := ws.index[e.Member.Name]; ok {
		el.Value = e
		return
	}
	ws.index[e.Member.Name] = ws.order.PushBack(e)
}

func (ws *WorkingSet) delete(name string) {
	if el, ok := ws.index[name]; ok {
		ws.order.Remove(el)
		delete(ws.index, name)
	}
}

func (ws *WorkingSet) clone() *WorkingSet {
	return NewWorkingSet(ws.Entries()...)
}
