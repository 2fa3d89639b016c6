package dwarfsym

import (
	"testing"

	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

func TestResolveDegradesToGenericWhenFileMissing(t *testing.T) {
	r := New(symbol.NewCache(), nil, nil, nil, nil, nil, nil)
	module := &trace.Module{Base: 0x1000, Size: 0x2000, FileName: "/nonexistent/libfoo.so", LoadTimestamp: 7}

	got := r.Resolve(1, module, 0x1500)
	if !got.IsGeneric {
		t.Fatalf("Resolve = %+v, want generic symbol", got)
	}
	want := "libfoo.so!0x1500"
	if got.Name != want {
		t.Fatalf("Name = %q, want %q", got.Name, want)
	}
}

func TestResolveDegradesToGenericWhenFiltered(t *testing.T) {
	r := New(symbol.NewCache(), symbol.NewFilter([]string{"*.so"}), nil, nil, nil, nil, nil)
	module := &trace.Module{Base: 0x1000, Size: 0x2000, FileName: "libfoo.so", LoadTimestamp: 7}

	got := r.Resolve(1, module, 0x1500)
	if !got.IsGeneric {
		t.Fatalf("Resolve = %+v, want generic symbol for filtered module", got)
	}
}

func TestResolveCachesResultPerKey(t *testing.T) {
	cache := symbol.NewCache()
	r := New(cache, nil, nil, nil, nil, nil, nil)
	module := &trace.Module{Base: 0x1000, Size: 0x2000, FileName: "/nonexistent/libfoo.so", LoadTimestamp: 7}

	first := r.Resolve(1, module, 0x1500)
	second := r.Resolve(1, module, 0x1500)
	if first != second {
		t.Fatalf("cached resolves differ: %+v vs %+v", first, second)
	}
	if _, ok := cache.Get(symbol.Key{ProcessID: 1, LoadTimestamp: 7, Address: 0x1500}); !ok {
		t.Fatal("expected cache to hold the resolved key")
	}
}
