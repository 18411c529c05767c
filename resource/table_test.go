package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable[string]()

	h, err := table.Insert("test")
	require.NoError(t, err)
	assert.NotZero(t, h)

	val, ok := table.Get(h)
	require.True(t, ok)
	assert.Equal(t, "test", val)
	assert.Equal(t, 1, table.Len())

	val, ok = table.Remove(h)
	require.True(t, ok)
	assert.Equal(t, "test", val)
	assert.Equal(t, 0, table.Len())

	_, ok = table.Get(h)
	assert.False(t, ok)
	_, ok = table.Remove(h)
	assert.False(t, ok, "double remove")
}

func TestTable_ZeroHandle(t *testing.T) {
	table := NewTable[int]()
	_, ok := table.Get(0)
	assert.False(t, ok)
	_, ok = table.Remove(0)
	assert.False(t, ok)
	_, ok = table.Get(Handle(12345))
	assert.False(t, ok)
}

func TestTable_StaleHandleAfterReuse(t *testing.T) {
	table := NewTable[string]()

	old, err := table.Insert("first")
	require.NoError(t, err)
	_, ok := table.Remove(old)
	require.True(t, ok)

	reused, err := table.Insert("second")
	require.NoError(t, err)
	assert.NotEqual(t, old, reused)
	assert.Equal(t, old.index(), reused.index(), "slot is recycled")

	_, ok = table.Get(old)
	assert.False(t, ok, "stale handle must not resolve to the new value")
	v, ok := table.Get(reused)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestTable_GenerationWraps(t *testing.T) {
	table := NewTable[int]()
	var h Handle
	for i := 0; i <= genMask+1; i++ {
		var err error
		h, err = table.Insert(i)
		require.NoError(t, err)
		_, ok := table.Remove(h)
		require.True(t, ok)
	}
	assert.Equal(t, 0, h.index())
	assert.Equal(t, 0, table.Len())
}

func TestTable_Observer(t *testing.T) {
	table := NewTable[string]()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, err := table.Insert("v")
	require.NoError(t, err)
	table.Remove(h)

	require.Len(t, obs.events, 2)
	assert.Equal(t, EventCreated, obs.events[0].Type)
	assert.Equal(t, EventDropped, obs.events[1].Type)
	assert.Equal(t, h, obs.events[1].Handle)
	assert.Equal(t, "dropped", obs.events[1].Type.String())

	table.Unsubscribe(obs)
	_, _ = table.Insert("w")
	assert.Len(t, obs.events, 2)
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable[int]()
	var seen []Handle
	table.Subscribe(ObserverFunc(func(e Event) { seen = append(seen, e.Handle) }))

	h, _ := table.Insert(1)
	assert.Equal(t, []Handle{h}, seen)
}

func TestTable_Each(t *testing.T) {
	table := NewTable[int]()
	a, _ := table.Insert(1)
	b, _ := table.Insert(2)
	c, _ := table.Insert(3)
	table.Remove(b)

	got := map[Handle]int{}
	table.Each(func(h Handle, v int) bool {
		got[h] = v
		return true
	})
	assert.Equal(t, map[Handle]int{a: 1, c: 3}, got)

	count := 0
	table.Each(func(Handle, int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestTable_Close(t *testing.T) {
	table := NewTable[*dropCounter]()
	obs := &testObserver{}
	table.Subscribe(obs)

	d1, d2 := &dropCounter{}, &dropCounter{}
	_, _ = table.Insert(d1)
	h2, _ := table.Insert(d2)
	table.Remove(h2)
	obs.events = nil

	require.NoError(t, table.Close())
	assert.Equal(t, 1, d1.drops)
	assert.Equal(t, 0, d2.drops, "removed values are not dropped again")
	require.Len(t, obs.events, 1)

	_, err := table.Insert(&dropCounter{})
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, table.Close())
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable[int]()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				h, err := table.Insert(i*1000 + j)
				if err != nil {
					t.Error(err)
					return
				}
				if v, ok := table.Get(h); !ok || v != i*1000+j {
					t.Errorf("handle %d: got %d, %v", h, v, ok)
				}
				table.Remove(h)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, table.Len())
}
