package trace

import "testing"

func TestStackCacheInterning(t *testing.T) {
	c := NewStackCache()

	i := c.Insert([]uint64{123, 456, 789})
	again := c.Insert([]uint64{123, 456, 789})
	if again != i {
		t.Fatalf("repeat insert = %d, want %d", again, i)
	}

	j := c.Insert([]uint64{123, 456})
	if j == i {
		t.Fatalf("distinct shorter stack got same index %d", j)
	}

	k := c.Insert([]uint64{789, 456, 123})
	if k == i || k == j {
		t.Fatalf("reversed stack got index %d, collided with i=%d or j=%d", k, i, j)
	}

	if got := c.Get(i); len(got) != 3 || got[0] != 123 || got[1] != 456 || got[2] != 789 {
		t.Fatalf("Get(i) = %v, want [123 456 789]", got)
	}
}
