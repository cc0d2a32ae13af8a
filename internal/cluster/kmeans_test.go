package cluster

import (
	"math/rand"
	"testing"
)

func TestFixedKSeparatesObviousGroups(t *testing.T) {
	points := []Point{
		{ID: 0, Values: []float64{0, 0}},
		{ID: 1, Values: []float64{0.1, 0.1}},
		{ID: 2, Values: []float64{10, 10}},
		{ID: 3, Values: []float64{10.1, 9.9}},
	}
	rng := rand.New(rand.NewSource(1))
	clusters, _, err := FixedK(points, 2, 100, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	for _, c := range clusters {
		if len(c.Points) != 2 {
			t.Fatalf("expected each cluster to hold 2 points, got %d", len(c.Points))
		}
	}
}

func TestFixedKFewerPointsThanK(t *testing.T) {
	points := []Point{
		{ID: 0, Values: []float64{0}},
		{ID: 1, Values: []float64{5}},
	}
	clusters, _, err := FixedK(points, 5, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected clustering to cap k at the point count (2), got %d clusters", len(clusters))
	}
}

func TestFixedKEmptyInput(t *testing.T) {
	if _, _, err := FixedK(nil, 2, 100, nil); err != ErrEmptyInput {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestFixedKDimensionMismatch(t *testing.T) {
	points := []Point{
		{ID: 0, Values: []float64{0, 0}},
		{ID: 1, Values: []float64{1}},
	}
	if _, _, err := FixedK(points, 1, 10, nil); err == nil {
		t.Fatal("expected a dimension mismatch error")
	}
}

func TestAdaptiveKPicksTwoForTwoObviousGroups(t *testing.T) {
	points := []Point{
		{ID: 0, Values: []float64{0, 0}},
		{ID: 1, Values: []float64{0.1, 0}},
		{ID: 2, Values: []float64{0, 0.1}},
		{ID: 3, Values: []float64{10, 10}},
		{ID: 4, Values: []float64{10.1, 10}},
		{ID: 5, Values: []float64{10, 10.1}},
	}
	rng := rand.New(rand.NewSource(2))
	clusters, _, err := AdaptiveK(points, 4, 100, Dunn, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected dunn index to favor k=2, got k=%d", len(clusters))
	}
}

func TestAdaptiveKInvalidIndex(t *testing.T) {
	points := []Point{{ID: 0, Values: []float64{0}}, {ID: 1, Values: []float64{1}}, {ID: 2, Values: []float64{2}}}
	if _, _, err := AdaptiveK(points, 2, 10, QualityIndex("bogus"), nil); err != ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
