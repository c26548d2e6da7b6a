package shard

import (
	"fmt"
	"strings"
	"testing"
)

func TestIndex_SingleShard(t *testing.T) {
	// With numShards<=1, all keys should go to shard 0
	for _, n := range []int{1, 0, -1} {
		for _, key := range []string{"request-A-00001", "generate-id-A", ""} {
			if got := Index(key, n); got != 0 {
				t.Errorf("Index(%q, %d) = %d, want 0", key, n, got)
			}
		}
	}
}

func TestIndex_Range(t *testing.T) {
	for _, n := range []int{2, 16, 64, 255, 256, 1000} {
		for i := 0; i < 500; i++ {
			got := Index(fmt.Sprintf("requests-A-%05d", i), n)
			if got < 0 || got >= n {
				t.Fatalf("Index out of range for %d shards: %d", n, got)
			}
		}
	}
}

func TestIndex_Deterministic(t *testing.T) {
	key := "tickets-A-00042"
	first := Index(key, 64)
	for i := 0; i < 100; i++ {
		if got := Index(key, 64); got != first {
			t.Fatalf("expected deterministic shard %d, got %d", first, got)
		}
	}
}

func TestIndex_Distribution_16Shards(t *testing.T) {
	counts := make(map[int]int)
	for i := 0; i < 1600; i++ {
		counts[Index(fmt.Sprintf("requests-A-%05d", i), 16)]++
	}
	if len(counts) != 16 {
		t.Errorf("expected all 16 shards used, got %d", len(counts))
	}
	for shard, n := range counts {
		if n < 25 {
			t.Errorf("shard %d underused: %d keys", shard, n)
		}
	}
}

func TestIndex_SpecialKeys(t *testing.T) {
	keys := []string{
		"generate-id-A/B",
		"日本語テスト",
		strings.Repeat("x", 10000),
		"with\nnewline",
		"with\x00null",
	}
	for _, key := range keys {
		if got := Index(key, 32); got < 0 || got >= 32 {
			t.Errorf("Index(%q) out of range: %d", key, got)
		}
	}
}

func BenchmarkIndex_SingleShard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Index("requests-A-00001", 1)
	}
}

func BenchmarkIndex_64Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Index("requests-A-00001", 64)
	}
}
