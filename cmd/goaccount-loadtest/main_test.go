package main

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 want 5 got %d", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 want 10 got %d", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("empty want 0 got %d", got)
	}
}

func TestRunPhaseCountsEveryOp(t *testing.T) {
	seen := make([]bool, 100)
	stats := runPhase(len(seen), 8, func(_ *rand.Rand, i int) error {
		seen[i] = true
		if i%10 == 0 {
			return errors.New("fail")
		}
		return nil
	})
	if stats.ops != 100 || stats.failures != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("op %d never ran", i)
		}
	}
}
