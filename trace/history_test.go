package trace

import "testing"

func TestHistoryCoalescing(t *testing.T) {
	h := NewHistory[int, int, string]()
	h.Insert(1, 10, "A")
	h.Insert(1, 11, "A")
	h.Insert(1, 11, "B")

	entries := h.Entries(1)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2: %+v", len(entries), entries)
	}
	if entries[0].Timestamp != 10 || entries[0].Payload != "A" {
		t.Fatalf("entries[0] = %+v, want {10 A}", entries[0])
	}
	if entries[1].Timestamp != 11 || entries[1].Payload != "B" {
		t.Fatalf("entries[1] = %+v, want {11 B}", entries[1])
	}
}

func TestHistoryFindAtStrictVsFallback(t *testing.T) {
	h := NewHistory[int, int, string]()
	h.Insert(1, 10, "A")
	h.Insert(1, 20, "B")

	if e := h.FindAt(1, 5, true); e != nil {
		t.Fatalf("strict FindAt before first entry = %+v, want nil", e)
	}
	if e := h.FindAt(1, 5, false); e == nil || e.Payload != "A" {
		t.Fatalf("fallback FindAt before first entry = %+v, want fallback to A", e)
	}
	if e := h.FindAt(1, 15, true); e == nil || e.Payload != "A" {
		t.Fatalf("FindAt(15) = %+v, want A", e)
	}
	if e := h.FindAt(1, 25, true); e == nil || e.Payload != "B" {
		t.Fatalf("FindAt(25) = %+v, want B", e)
	}
}
