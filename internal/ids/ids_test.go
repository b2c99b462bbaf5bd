package ids

import "testing"

func TestNew(t *testing.T) {
	first := New()
	second := New()
	if len(first) != 26 || len(second) != 26 {
		t.Fatalf("unexpected id lengths: %q, %q", first, second)
	}
	if first == second {
		t.Fatal("consecutive ids collide")
	}
	// Monotonic entropy keeps same-millisecond ids sortable.
	if first >= second {
		t.Fatalf("ids not monotonic: %q >= %q", first, second)
	}
}
