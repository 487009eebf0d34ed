package geometry

import (
	"math"

	"github.com/cjeanneret/stepramp/internal/config"
)

// StepsCalculator converts shaft angles to pulse counts and back.
type StepsCalculator struct {
	stepsPerDegree float64
}

// NewStepsCalculator creates a step calculator from configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	return NewStepsCalculatorPerRev(cfg.StepsPerRev())
}

// NewStepsCalculatorPerRev creates a step calculator for the given number
// of pulses per revolution, microstepping included.
func NewStepsCalculatorPerRev(stepsPerRev int) *StepsCalculator {
	return &StepsCalculator{stepsPerDegree: float64(stepsPerRev) / 360.0}
}

// StepsPerDegree returns the pulse count of one degree.
func (s *StepsCalculator) StepsPerDegree() float64 {
	return s.stepsPerDegree
}

// StepsFromAngle converts an angle in degrees to the nearest pulse count.
// Results beyond the int32 range saturate.
func (s *StepsCalculator) StepsFromAngle(angleDegrees float64) int32 {
	steps := math.Round(angleDegrees * s.stepsPerDegree)
	switch {
	case steps >= math.MaxInt32:
		return math.MaxInt32
	case steps <= math.MinInt32:
		return math.MinInt32
	}
	return int32(steps)
}

// AngleFromSteps converts a pulse count to degrees.
func (s *StepsCalculator) AngleFromSteps(steps int32) float64 {
	if s.stepsPerDegree == 0 {
		return 0
	}
	return float64(steps) / s.stepsPerDegree
}
