package tokenizer

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	got := Split("Add caching, v2 now! 缓存")
	want := []string{"Add", "caching", ",", "v2", "now", "!", "缓", "存"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestSimpleCounterEmpty(t *testing.T) {
	if n := NewSimpleCounter().CountTokens("   "); n != 0 {
		t.Errorf("expected 0 tokens for whitespace, got %d", n)
	}
}
