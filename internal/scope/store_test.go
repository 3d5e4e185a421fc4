package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/testutil"
	"github.com/roach88/vdb/internal/value"
)

func modelRef(t *testing.T, a *testutil.ModelAdapter, m *testutil.Model, path ...string) *value.Ref {
	t.Helper()
	r, err := value.NewRef(a, m, value.Path(path))
	require.NoError(t, err)
	return r
}

func TestSetIsIdempotent(t *testing.T) {
	s := New()
	calls := 0
	s.Observe("list", func() error { calls++; return nil })

	require.NoError(t, s.Set("list", value.Seq{value.Int(1), value.Map{"a": value.String("x")}}))
	require.NoError(t, s.Set("list", value.Seq{value.Int(1), value.Map{"a": value.String("x")}}))
	assert.Equal(t, 1, calls)

	require.NoError(t, s.Set("list", value.Seq{value.Int(2)}))
	assert.Equal(t, 2, calls)
}

func TestSetUndefinedOnMissingSlotIsNoop(t *testing.T) {
	s := New()
	calls := 0
	s.Observe("x", func() error { calls++; return nil })

	require.NoError(t, s.Set("x", nil))
	assert.Equal(t, 0, calls)
	assert.False(t, s.Has("x"))
}

func TestObserversFireInRegistrationOrder(t *testing.T) {
	s := New()
	var order []int
	first := s.Observe("a", func() error { order = append(order, 1); return nil })
	second := s.Observe("a", func() error { order = append(order, 2); return nil })
	other := s.Observe("b", func() error { order = append(order, 3); return nil })

	assert.Less(t, first, second)
	assert.Less(t, second, other)

	require.NoError(t, s.Set("a", value.String("v")))
	assert.Equal(t, []int{1, 2}, order)
}

func TestUnobserveRemovesExactlyOne(t *testing.T) {
	s := New()
	calls := 0
	id := s.Observe("a", func() error { calls++; return nil })
	s.Observe("a", func() error { calls++; return nil })

	s.Unobserve(id)
	s.Unobserve(id)
	s.Unobserve(9999)
	assert.Equal(t, 1, s.ObserverCount("a"))

	require.NoError(t, s.Notify("a"))
	assert.Equal(t, 1, calls)
}

func TestCallbackErrorStopsNotification(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	later := false
	s.Observe("a", func() error { return boom })
	s.Observe("a", func() error { later = true; return nil })

	err := s.Set("a", value.Int(1))
	assert.ErrorIs(t, err, boom)
	assert.False(t, later)
	assert.Equal(t, value.Int(1), s.Get("a"))
}

func TestReferenceLeavesAreObserved(t *testing.T) {
	ma := testutil.NewModelAdapter(nil)
	m := testutil.NewModel(value.Map{"items": value.Seq{value.String("a"), value.String("b")}})

	s := New()
	calls := 0
	s.Observe("items", func() error { calls++; return nil })

	require.NoError(t, s.Set("items", value.Seq{
		modelRef(t, ma, m, "items", "0"),
		modelRef(t, ma, m, "items", "1"),
	}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, s.RefObserverCount("items"))
	assert.Equal(t, 2, ma.ObserverCount())

	// Out-of-band change to a referenced location re-notifies the slot.
	require.NoError(t, ma.Set(m, value.Path{"items", "1"}, value.String("B")))
	assert.Equal(t, 2, calls)

	// Replacing the value drops the old reference observers.
	require.NoError(t, s.Set("items", value.Seq{}))
	assert.Equal(t, 0, ma.ObserverCount())
	assert.Equal(t, 3, calls)
}

func TestWriteThroughNotifiesOnce(t *testing.T) {
	ma := testutil.NewModelAdapter(nil)
	m := testutil.NewModel(value.Map{"name": value.String("n")})
	ref := modelRef(t, ma, m, "name")

	s := New()
	require.NoError(t, s.Set("entry", ref))
	calls := 0
	s.Observe("entry", func() error { calls++; return nil })

	require.NoError(t, s.WriteThrough("entry", func() error { return ref.Set(value.String("N")) }))
	assert.Equal(t, 1, calls, "the adapter echo and the explicit notify collapse")
	assert.Equal(t, value.Map{"name": value.String("N")}, m.Data)

	require.NoError(t, ma.Set(m, value.Path{"name"}, value.String("x")))
	assert.Equal(t, 2, calls, "out-of-band changes notify again once the write is done")

	boom := errors.New("boom")
	assert.ErrorIs(t, s.WriteThrough("entry", func() error { return boom }), boom)
	assert.Equal(t, 2, calls)
}

func TestDestroyDropsSlotAndReferenceObservers(t *testing.T) {
	ma := testutil.NewModelAdapter(nil)
	m := testutil.NewModel(value.Map{"name": value.String("n")})

	s := New()
	require.NoError(t, s.Set("entry", modelRef(t, ma, m, "name")))
	assert.Equal(t, 1, ma.ObserverCount())

	s.Destroy("entry")
	assert.False(t, s.Has("entry"))
	assert.Nil(t, s.Get("entry"))
	assert.Equal(t, 0, ma.ObserverCount())

	s.Destroy("never-existed")
}

func TestPauseCoalescesNotifications(t *testing.T) {
	ma := testutil.NewModelAdapter(nil)
	m := testutil.NewModel(value.Map{"name": value.String("n")})

	s := New()
	require.NoError(t, s.Set("name", modelRef(t, ma, m, "name")))

	calls := 0
	s.Observe("name", func() error { calls++; return nil })
	s.Observe("other", func() error { calls += 100; return nil })

	s.Pause()
	assert.True(t, s.Paused())
	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, ma.Set(m, value.Path{"name"}, value.String(v)))
	}
	assert.Equal(t, 0, calls)

	require.NoError(t, s.Resume())
	assert.Equal(t, 1, calls)
	assert.False(t, s.Paused())

	got, err := s.Get("name").(*value.Ref).GetValue()
	require.NoError(t, err)
	assert.Equal(t, value.String("d"), got)
}

func TestResumeReplaysInQueueOrder(t *testing.T) {
	s := New()
	var order []string
	s.Observe("a", func() error { order = append(order, "a"); return nil })
	s.Observe("b", func() error { order = append(order, "b"); return nil })

	s.Pause()
	require.NoError(t, s.Set("b", value.Int(1)))
	require.NoError(t, s.Set("a", value.Int(1)))
	require.NoError(t, s.Set("b", value.Int(2)))
	require.NoError(t, s.Notify("a"))
	assert.Empty(t, order)

	require.NoError(t, s.Resume())
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestIDsAndObservedIDs(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("b", value.Int(1)))
	require.NoError(t, s.Set("a", value.Int(1)))
	s.Observe("z", func() error { return nil })

	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.Equal(t, []string{"z"}, s.ObservedIDs())
}
