package trace

import "testing"

func mustModule(base, size uint64, name string) Module {
	return Module{Base: base, Size: size, FileName: name}
}

func TestModuleMapNonOverlapping(t *testing.T) {
	m := NewModuleMap()
	m.Insert(mustModule(10, 20, "M1"), 5)  // [10,30)
	m.Insert(mustModule(50, 20, "M2"), 10) // [50,70)
	m.Insert(mustModule(90, 40, "M3"), 3)  // [90,130)

	cases := []struct {
		addr uint64
		ts   int64
		want string
		ok   bool
	}{
		{20, 5, "M1", true},
		{20, 0, "", false},
		{60, 10, "M2", true},
		{60, 5, "", false},
		{100, 4, "M3", true},
		{150, 20, "", false},
	}

	for _, c := range cases {
		mod, ok := m.Find(c.addr, c.ts, true)
		if ok != c.ok {
			t.Fatalf("Find(%d,%d) ok=%v, want %v", c.addr, c.ts, ok, c.ok)
		}
		if ok && mod.FileName != c.want {
			t.Fatalf("Find(%d,%d) = %q, want %q", c.addr, c.ts, mod.FileName, c.want)
		}
	}
}
