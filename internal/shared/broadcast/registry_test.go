package broadcast

import (
	"testing"
)

func TestRegistry_NotifyInOrder(t *testing.T) {
	r := NewRegistry[int]()

	var got []string
	r.Add(func(v int) { got = append(got, "first") })
	r.Add(func(v int) { got = append(got, "second") })
	r.Add(func(v int) { got = append(got, "third") })

	if errs := r.Notify(1); len(errs) != 0 {
		t.Fatalf("Notify() returned errors: %v", errs)
	}

	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistry_PanickingSubscriberIsIsolated(t *testing.T) {
	r := NewRegistry[[]int]()

	var recorded []int
	r.Add(func(v []int) { panic("boom") })
	r.Add(func(v []int) { recorded = v })

	errs := r.Notify([]int{1, 2, 3})
	if len(errs) != 1 {
		t.Fatalf("Notify() returned %d errors, want 1", len(errs))
	}
	if len(recorded) != 3 {
		t.Errorf("second subscriber recorded %v, want [1 2 3]", recorded)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry[string]()

	calls := 0
	h := r.Add(func(string) { calls++ })

	if !r.Remove(h) {
		t.Error("Remove() = false for registered handle")
	}
	if r.Remove(h) {
		t.Error("Remove() = true for already removed handle")
	}
	if r.Remove(Handle{}) {
		t.Error("Remove() = true for unknown handle")
	}

	r.Notify("x")
	if calls != 0 {
		t.Errorf("removed subscriber called %d times", calls)
	}
}

func TestRegistry_RemoveDuringNotify(t *testing.T) {
	r := NewRegistry[int]()

	var second Handle
	secondCalls := 0
	r.Add(func(int) { r.Remove(second) })
	second = r.Add(func(int) { secondCalls++ })

	// The snapshot taken before delivery still includes the second subscriber.
	r.Notify(1)
	if secondCalls != 1 {
		t.Errorf("second subscriber called %d times on first notify, want 1", secondCalls)
	}

	r.Notify(2)
	if secondCalls != 1 {
		t.Errorf("second subscriber called %d times after removal, want 1", secondCalls)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry[int]()
	r.Add(func(int) {})
	r.Add(func(int) {})

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", r.Len())
	}
}
