package ringbuf

import "testing"

func TestPushAndItems(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	r.Push(2)
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	got := r.Items()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("items = %v", got)
	}
}

func TestOverwriteOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	got := r.Items()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
}

func TestEvictedValue(t *testing.T) {
	r := New[string](2)
	if _, evicted := r.Push("a"); evicted {
		t.Fatalf("unexpected eviction")
	}
	r.Push("b")
	old, evicted := r.Push("c")
	if !evicted || old != "a" {
		t.Fatalf("evicted=%v old=%q, want true %q", evicted, old, "a")
	}
}

func TestLast(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	got := r.Last(2)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("last = %v", got)
	}
	if n := len(r.Last(10)); n != 4 {
		t.Fatalf("last(10) len = %d, want 4", n)
	}
}

func TestDoEarlyStop(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}
	var seen []int
	r.Do(func(v int) bool {
		seen = append(seen, v)
		return v < 2
	})
	if len(seen) != 2 {
		t.Fatalf("seen = %v, want stop after 2", seen)
	}
}

func TestMinimumCapacity(t *testing.T) {
	r := New[int](0)
	if r.Cap() != 1 {
		t.Fatalf("cap = %d, want 1", r.Cap())
	}
}
