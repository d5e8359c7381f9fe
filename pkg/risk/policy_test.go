package risk

import (
	"errors"
	"math"
	"testing"
)

func TestClassifyTiers(t *testing.T) {
	cases := []struct {
		probability float64
		want        Level
	}{
		{0.0, LevelLow},
		{0.39, LevelLow},
		{0.3999, LevelLow},
		{0.4, LevelMedium},
		{0.55, LevelMedium},
		{0.7, LevelMedium},
		{0.7001, LevelHigh},
		{0.71, LevelHigh},
		{1.0, LevelHigh},
	}
	for _, c := range cases {
		got, err := Classify(c.probability)
		if err != nil {
			t.Fatalf("unexpected error for %f: %v", c.probability, err)
		}
		if got != c.want {
			t.Fatalf("Classify(%f) = %s, want %s", c.probability, got, c.want)
		}
	}
}

func TestClassifyRejectsOutOfRange(t *testing.T) {
	for _, p := range []float64{-0.01, 1.01, math.NaN()} {
		_, err := Classify(p)
		if !errors.Is(err, ErrInvalidProbability) {
			t.Fatalf("expected ErrInvalidProbability for %v, got %v", p, err)
		}
	}
}
