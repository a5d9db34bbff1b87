package ppm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testThresholds = Thresholds{Neutral: 1500, Forward: 1750, Backward: 1250}

func feedAll(l *Latch, samples ...PulseSample) []Action {
	actions := make([]Action, 0, len(samples))
	for _, s := range samples {
		actions = append(actions, l.Feed(s))
	}
	return actions
}

func countActions(actions []Action, want Action) int {
	n := 0
	for _, a := range actions {
		if a == want {
			n++
		}
	}
	return n
}

func TestLatch_InitialState(t *testing.T) {
	l := NewLatch(testThresholds)
	assert.Equal(t, Armed, l.State())
	assert.Equal(t, None, l.Asserted())
	assert.False(t, l.ForwardOn())
	assert.False(t, l.BackwardOn())
	assert.Equal(t, testThresholds, l.Thresholds())
}

func TestLatch_RearmLaw(t *testing.T) {
	l := NewLatch(testThresholds)
	actions := feedAll(l, 1500, 1800, 1500, 1800)
	assert.Equal(t, []Action{NoAction, ToggleForward, Rearm, ToggleForward}, actions)
	assert.Equal(t, 2, countActions(actions, ToggleForward))
	assert.False(t, l.ForwardOn(), "two toggles must leave the output off again")

	l = NewLatch(testThresholds)
	actions = feedAll(l, 1500, 1800, 1800, 1800)
	assert.Equal(t, 1, countActions(actions, ToggleForward))
	assert.True(t, l.ForwardOn())
	assert.Equal(t, Engaged, l.State())
	assert.Equal(t, Forward, l.Asserted())
}

func TestLatch_HoldingDeflectionTogglesOnce(t *testing.T) {
	l := NewLatch(testThresholds)
	samples := []PulseSample{1800}
	for i := 0; i < 100; i++ {
		samples = append(samples, PulseSample(1751+i))
	}
	actions := feedAll(l, samples...)
	assert.Equal(t, 1, countActions(actions, ToggleForward))
	assert.Equal(t, ToggleForward, actions[0])
}

func TestLatch_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		sample PulseSample
		want   Action
	}{
		{"exactly forward", 1750, NoAction},
		{"exactly backward", 1250, NoAction},
		{"one above forward", 1751, ToggleForward},
		{"one below backward", 1249, ToggleBackward},
		{"inside band while armed", 1749, NoAction},
		{"zero width pulse", 0, ToggleBackward},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLatch(testThresholds)
			assert.Equal(t, tt.want, l.Feed(tt.sample))
		})
	}
}

func TestLatch_ThresholdDoesNotRearm(t *testing.T) {
	l := NewLatch(testThresholds)
	l.Feed(1800)
	assert.Equal(t, NoAction, l.Feed(1750), "a sample on the threshold is not inside the neutral band")
	assert.Equal(t, Engaged, l.State())
	assert.Equal(t, NoAction, l.Feed(1800))
	assert.True(t, l.ForwardOn())
}

func TestLatch_DirectionAgnostic(t *testing.T) {
	l := NewLatch(testThresholds)
	actions := feedAll(l, 1800, 1200, 1100)
	assert.Equal(t, []Action{ToggleForward, NoAction, NoAction}, actions)
	assert.False(t, l.BackwardOn(), "backward must not toggle without passing neutral")

	assert.Equal(t, Rearm, l.Feed(1500))
	assert.Equal(t, None, l.Asserted())
	assert.Equal(t, ToggleBackward, l.Feed(1200))
	assert.True(t, l.BackwardOn())
	assert.True(t, l.ForwardOn())
	assert.Equal(t, Backward, l.Asserted())
}

func TestLatch_OutputsAreIndependent(t *testing.T) {
	l := NewLatch(testThresholds)
	feedAll(l, 1800, 1500, 1200, 1500, 1200, 1500)
	assert.True(t, l.ForwardOn())
	assert.False(t, l.BackwardOn())
	assert.Equal(t, Armed, l.State())
}
