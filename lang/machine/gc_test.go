package machine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRoots struct {
	values []Value
}

func (r *fakeRoots) MarkRoots(gc *GC) {
	for _, v := range r.values {
		gc.MarkValue(v)
	}
}

func TestCollectFreesUnreachableStrings(t *testing.T) {
	gc := NewGC()
	roots := &fakeRoots{}
	gc.SetRoots(roots)

	kept := gc.NewString("kept")
	gc.NewString("garbage")
	roots.values = []Value{Obj(kept)}

	gc.Collect()

	require.Equal(t, 1, gc.strings.count())
	again := gc.NewString("kept")
	require.Same(t, kept, again, "surviving string must still be interned as the same object")
}

func TestCollectKeepsSurvivingStringOnObjectsList(t *testing.T) {
	gc := NewGC()
	roots := &fakeRoots{}
	gc.SetRoots(roots)

	kept := gc.NewString("kept")
	roots.values = []Value{Obj(kept)}

	gc.Collect()
	gc.Collect() // a second cycle would unlink a survivor left marked by the first

	found := false
	for o := gc.objectsHead; o != nil; o = o.nextObject() {
		if o == Object(kept) {
			found = true
		}
	}
	require.True(t, found, "surviving string must stay linked in the object list across GC cycles")
}

func TestCollectTracesClosureUpvalues(t *testing.T) {
	gc := NewGC()
	roots := &fakeRoots{}
	gc.SetRoots(roots)

	slot := Number(7)
	uv := gc.NewUpvalue(&slot)
	fn := gc.NewFunction(nil, nil)
	closure := gc.NewClosure(fn, []*Upvalue{uv})
	roots.values = []Value{Obj(closure)}

	gc.Collect()

	// if uv or fn had been swept, walking objectsHead below would not find
	// them: sweep unlinks dead objects from the list.
	found := map[Object]bool{}
	for o := gc.objectsHead; o != nil; o = o.nextObject() {
		found[o] = true
	}
	require.True(t, found[uv])
	require.True(t, found[fn])
	require.True(t, found[closure])
}

func TestCollectIsNoopWithoutRoots(t *testing.T) {
	gc := NewGC()
	gc.NewString("anything")
	require.NotPanics(t, func() { gc.Collect() })
	require.Equal(t, 1, gc.strings.count(), "collect without roots must not sweep anything")
}

func TestStressModeCollectsOnEveryAllocation(t *testing.T) {
	gc := NewGC()
	roots := &fakeRoots{}
	gc.SetRoots(roots)
	gc.stress = true

	gc.NewString("a")
	gc.NewString("b") // the collection run by this allocation drops the unrooted "a"

	require.Equal(t, 1, gc.strings.count(), "only \"b\", interned after the last collection ran, should remain")
}

func TestHeapGrowFactorNextCollectClampsToFloor(t *testing.T) {
	gc := NewGC()
	gc.SetRoots(&fakeRoots{})
	gc.growFactor = 4
	gc.bytesAllocated = 100
	gc.Collect()
	require.Equal(t, initialNextCollect, gc.nextCollect, "below the floor, nextCollect clamps to initialNextCollect")
}
