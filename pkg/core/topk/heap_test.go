package topk

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/sanonone/gmc/pkg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(dists ...float64) []types.Candidate {
	out := make([]types.Candidate, len(dists))
	for i, d := range dists {
		out[i] = types.Candidate{Id: i, Distance: d}
	}
	return out
}

func TestSelectorKeepsSmallest(t *testing.T) {
	all := candidates(9, 3, 7, 1, 8, 2, 6, 0.5, 4)
	s := New(all[:3])
	require.Equal(t, 3, s.Len())
	assert.Equal(t, 9.0, s.Max().Distance)

	for _, c := range all[3:] {
		s.Offer(c)
	}

	got := s.Sorted()
	require.Len(t, got, 3)
	assert.Equal(t, []int{7, 3, 5}, []int{got[0].Id, got[1].Id, got[2].Id})
	assert.Equal(t, 2.0, s.Max().Distance)
}

func TestSelectorOfferRejectsLargerOrEqual(t *testing.T) {
	s := New(candidates(1, 2, 3))
	assert.False(t, s.Offer(types.Candidate{Id: 10, Distance: 3}))
	assert.False(t, s.Offer(types.Candidate{Id: 11, Distance: 42}))
	assert.True(t, s.Offer(types.Candidate{Id: 12, Distance: 2.5}))
	assert.Equal(t, 2.5, s.Max().Distance)
}

func TestSelectorMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, k = 500, 16

	all := make([]types.Candidate, n)
	for i := range all {
		all[i] = types.Candidate{Id: i, Distance: rng.Float64()}
	}

	s := New(all[:k])
	for _, c := range all[k:] {
		s.Offer(c)
	}

	want := append([]types.Candidate(nil), all...)
	sort.Slice(want, func(i, j int) bool { return want[i].Distance < want[j].Distance })
	assert.Equal(t, want[:k], s.Sorted())
}

func TestNewCopiesInput(t *testing.T) {
	init := candidates(5, 6)
	s := New(init)
	s.Offer(types.Candidate{Id: 9, Distance: 0})
	assert.Equal(t, 5.0, init[0].Distance)
	assert.Equal(t, 6.0, init[1].Distance)
}

func BenchmarkSelectorOffer(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	stream := make([]types.Candidate, 4096)
	for i := range stream {
		stream[i] = types.Candidate{Id: i, Distance: rng.Float64()}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := New(stream[:16])
		for _, c := range stream[16:] {
			s.Offer(c)
		}
	}
}
