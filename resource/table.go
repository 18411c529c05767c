package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("resource table closed")
	ErrFull   = errors.New("resource table full")
)

// Table is an in-memory handle table with generation checks.
type Table[T any] struct {
	entries  []entry[T]
	freeList []int
	mu       sync.RWMutex
	closed   bool

	observers []Observer
	obsMu     sync.RWMutex
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]int, 0, 16),
	}
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	handle, err := t.insert(value)
	if err != nil {
		return 0, err
	}
	t.notify(Event{Type: EventCreated, Handle: handle, Value: value})
	return handle, nil
}

func (t *Table[T]) insert(value T) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}

	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[idx]
		e.value = value
		e.valid = true
		return makeHandle(idx, e.gen), nil
	}

	if len(t.entries) >= MaxEntries {
		return 0, ErrFull
	}
	t.entries = append(t.entries, entry[T]{value: value, valid: true})
	return makeHandle(len(t.entries)-1, 0), nil
}

// lookup returns the live entry for handle. Callers hold t.mu.
func (t *Table[T]) lookup(handle Handle) *entry[T] {
	if handle == 0 {
		return nil
	}
	idx := handle.index()
	if idx < 0 || idx >= len(t.entries) {
		return nil
	}
	e := &t.entries[idx]
	if !e.valid || e.gen&genMask != handle.gen() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	e := t.lookup(handle)
	if e == nil {
		return zero, false
	}
	return e.value, true
}

// Remove drops a handle and returns its value. The handle is invalid afterwards.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	value, ok := t.remove(handle)
	if ok {
		t.notify(Event{Type: EventDropped, Handle: handle, Value: value})
	}
	return value, ok
}

func (t *Table[T]) remove(handle Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e := t.lookup(handle)
	if e == nil {
		return zero, false
	}

	value := e.value
	e.value = zero
	e.valid = false
	e.gen = (e.gen + 1) & genMask
	t.freeList = append(t.freeList, handle.index())
	return value, true
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Each iterates over live handles until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(makeHandle(i, e.gen), e.value) {
				break
			}
		}
	}
}

// Subscribe adds an observer.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()

	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}

// Close drops every remaining value and rejects further inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for i, e := range entries {
		if !e.valid {
			continue
		}
		if d, ok := any(e.value).(Dropper); ok {
			d.Drop()
		}
		t.notify(Event{Type: EventDropped, Handle: makeHandle(i, e.gen), Value: e.value})
	}
	return nil
}
