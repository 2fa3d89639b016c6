package pathmap

import "testing"

func TestResolveLiteralPrefixWinsOverRegex(t *testing.T) {
	m := New(
		NewLiteralRule(`/build/agent1/`, `/home/dev/`),
		NewRegexRule(`^/build/.*/out/(.*)$`, `/home/dev/out/$1`),
	)
	got := m.Resolve(`/build/agent1/out/libfoo.so`)
	want := `/home/dev/out/libfoo.so`
	if got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveFallsThroughToRegex(t *testing.T) {
	m := New(
		NewLiteralRule(`/build/agent1/`, `/home/dev/`),
		NewRegexRule(`^/build/agent2/(.*)$`, `/home/other/$1`),
	)
	got := m.Resolve(`/build/agent2/libbar.so`)
	want := `/home/other/libbar.so`
	if got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveNoMatchReturnsInput(t *testing.T) {
	m := New(NewLiteralRule(`/build/agent1/`, `/home/dev/`))
	path := `/usr/lib/libc.so.6`
	if got := m.Resolve(path); got != path {
		t.Fatalf("Resolve = %q, want unchanged %q", got, path)
	}
}

func TestResolveEmptyMapIsIdentity(t *testing.T) {
	m := New()
	path := `/any/path`
	if got := m.Resolve(path); got != path {
		t.Fatalf("Resolve = %q, want unchanged %q", got, path)
	}
}
