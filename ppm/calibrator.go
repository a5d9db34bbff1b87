package ppm

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotCalibrated        = errors.New("calibration incomplete")
	ErrInvalidFraction      = errors.New("deflection fraction must have a non-zero denominator")
	ErrDegenerateThresholds = errors.New("thresholds do not satisfy backward < neutral < forward")
)

// Calibrator averages the first N samples, taken while the stick rests in
// neutral position, and derives the toggle thresholds from that mean.
type Calibrator struct {
	samples  int
	fraction Fraction
	sum      uint64
	count    int
}

func NewCalibrator(samples int, fraction Fraction) *Calibrator {
	if samples < 1 {
		samples = 1
	}
	return &Calibrator{samples: samples, fraction: fraction}
}

// Add accumulates one sample and returns true once exactly N samples have
// been collected. Samples beyond N are ignored.
func (c *Calibrator) Add(sample PulseSample) bool {
	if c.count >= c.samples {
		return true
	}
	c.sum += uint64(sample)
	c.count++
	return c.count == c.samples
}

// Collected returns the number of samples accumulated so far.
func (c *Calibrator) Collected() int {
	return c.count
}

// Neutral returns the truncated arithmetic mean of the collected samples.
func (c *Calibrator) Neutral() (PulseSample, error) {
	if c.count < c.samples {
		return 0, fmt.Errorf("%w: %d of %d samples", ErrNotCalibrated, c.count, c.samples)
	}
	return PulseSample(c.sum / uint64(c.count)), nil
}

// Thresholds finalizes the calibration.
func (c *Calibrator) Thresholds() (Thresholds, error) {
	neutral, err := c.Neutral()
	if err != nil {
		return Thresholds{}, err
	}
	return DeriveThresholds(neutral, c.fraction)
}

// DeriveThresholds computes the forward and backward toggle widths.
//
// A standard PPM signal is 1.5ms in neutral and 2.0ms at full forward
// deflection, so neutral*20/15 approximates full deflection and
// (full - neutral) the distance to it. That distance is scaled by
// fraction. All arithmetic is integer and truncates at each step in
// exactly this order:
//
//	diff = (((neutral*20)/15) - neutral) * num / den
func DeriveThresholds(neutral PulseSample, fraction Fraction) (Thresholds, error) {
	if fraction.Denominator == 0 {
		return Thresholds{}, ErrInvalidFraction
	}
	n := uint64(neutral)
	diff := (((n * 20) / 15) - n) * uint64(fraction.Numerator) / uint64(fraction.Denominator)
	if diff == 0 || diff >= n || n+diff > math.MaxUint32 {
		return Thresholds{}, fmt.Errorf("%w: neutral %d, offset %d", ErrDegenerateThresholds, n, diff)
	}
	return Thresholds{
		Neutral:  neutral,
		Forward:  PulseSample(n + diff),
		Backward: PulseSample(n - diff),
	}, nil
}
