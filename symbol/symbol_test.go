package symbol

import "testing"

func TestMakeGenericWithAndWithoutModule(t *testing.T) {
	s := MakeGeneric("myapp.exe", 0x1000)
	if !s.IsGeneric || s.Name != "myapp.exe!0x1000" {
		t.Fatalf("MakeGeneric(module) = %+v", s)
	}
	s2 := MakeGeneric("", 0x2000)
	if !s2.IsGeneric || s2.Name != "0x2000" {
		t.Fatalf("MakeGeneric(no module) = %+v", s2)
	}
}

func TestCacheGetOrResolveCallsOnce(t *testing.T) {
	c := NewCache()
	key := Key{ProcessID: 1, LoadTimestamp: 5, Address: 0x100}
	calls := 0
	resolve := func() Symbol {
		calls++
		return Symbol{Name: "foo"}
	}
	first := c.GetOrResolve(key, resolve)
	second := c.GetOrResolve(key, resolve)
	if calls != 1 {
		t.Fatalf("resolve called %d times, want 1", calls)
	}
	if first != second {
		t.Fatalf("cached results differ: %+v vs %+v", first, second)
	}
}

func TestFilterExcludedMatchesWildcard(t *testing.T) {
	f := NewFilter([]string{"ntdll.dll", "*.so.6"})
	if !f.Excluded(`C:\Windows\System32\ntdll.dll`) {
		t.Fatal("expected ntdll.dll to be excluded")
	}
	if !f.Excluded("/lib/x86_64-linux-gnu/libc.so.6") {
		t.Fatal("expected libc.so.6 to be excluded")
	}
	if f.Excluded("myapp.exe") {
		t.Fatal("expected myapp.exe to not be excluded")
	}
}

func TestBaseNameHandlesBothSeparatorStyles(t *testing.T) {
	if got := BaseName(`C:\Windows\System32\ntdll.dll`); got != "ntdll.dll" {
		t.Fatalf("BaseName(windows path) = %q, want ntdll.dll", got)
	}
	if got := BaseName("/usr/lib/libc.so.6"); got != "libc.so.6" {
		t.Fatalf("BaseName(unix path) = %q, want libc.so.6", got)
	}
	if got := BaseName("app.exe"); got != "app.exe" {
		t.Fatalf("BaseName(bare name) = %q, want app.exe", got)
	}
}

func TestPDBURLLayout(t *testing.T) {
	guid := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 1, 2, 3, 4, 5, 6, 7, 8}
	url := PDBURL("https://msdl.microsoft.com/download/symbols", "app.pdb", guid, 1)
	want := "https://msdl.microsoft.com/download/symbols/app.pdb/78563412BC9AF0DE01020304050607081/app.pdb"
	if url != want {
		t.Fatalf("PDBURL = %q, want %q", url, want)
	}
}

func TestDebuginfodURLLayout(t *testing.T) {
	url := DebuginfodURL("https://debuginfod.example.com", []byte{0xab, 0xcd, 0xef})
	want := "https://debuginfod.example.com/buildid/abcdef/debuginfo"
	if url != want {
		t.Fatalf("DebuginfodURL = %q, want %q", url, want)
	}
}
