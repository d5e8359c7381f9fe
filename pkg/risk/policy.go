package risk

import (
	"errors"
	"fmt"
)

type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelMedium Level = "MEDIUM"
	LevelLow    Level = "LOW"
)

var ErrInvalidProbability = errors.New("probability outside [0,1]")

// Classify maps a probability onto the fixed risk tiers:
// p > 0.7 HIGH, 0.4 <= p <= 0.7 MEDIUM, p < 0.4 LOW.
func Classify(probability float64) (Level, error) {
	if probability < 0 || probability > 1 || probability != probability {
		return "", fmt.Errorf("probability %v: %w", probability, ErrInvalidProbability)
	}
	switch {
	case probability > 0.7:
		return LevelHigh, nil
	case probability >= 0.4:
		return LevelMedium, nil
	default:
		return LevelLow, nil
	}
}
