package provider

import (
	"context"
	"testing"
)

func TestDecodeAllPropagatesFirstError(t *testing.T) {
	_, err := DecodeAll(context.Background(), []string{
		"/nonexistent/one.etl",
		"/nonexistent/two.data",
	}, nil, nil)
	if err == nil {
		t.Fatal("expected an error for nonexistent trace paths")
	}
}

func TestDecodeAllEmptyInputReturnsEmptySlice(t *testing.T) {
	providers, err := DecodeAll(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("DecodeAll(nil): %v", err)
	}
	if len(providers) != 0 {
		t.Fatalf("providers = %v, want empty", providers)
	}
}
