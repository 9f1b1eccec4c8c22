package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	gate := New(true, nil)

	tests := []struct {
		name         string
		question     string
		wantBlocked  bool
		wantCategory string
	}{
		{
			name:     "benign health question",
			question: "Is metformin effective for type 2 diabetes?",
		},
		{
			name:         "self harm",
			question:     "I want to end my life, what should I do?",
			wantBlocked:  true,
			wantCategory: CategorySelfHarm,
		},
		{
			name:         "overdose guidance",
			question:     "What is the lethal dose of acetaminophen?",
			wantBlocked:  true,
			wantCategory: CategoryMedicalHarm,
		},
		{
			name:         "violence",
			question:     "how to make a bomb at home",
			wantBlocked:  true,
			wantCategory: CategoryViolenceIllegal,
		},
		{
			name:         "minors with sexual cue",
			question:     "explicit content involving a 14 yo",
			wantBlocked:  true,
			wantCategory: CategorySexualMinors,
		},
		{
			name:     "age cue alone is allowed",
			question: "vaccine schedule for a 14 yo",
		},
		{
			name:     "empty passes through",
			question: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Decide(tt.question)
			assert.Equal(t, tt.wantBlocked, d.Blocked)
			assert.Equal(t, tt.wantCategory, d.Category)
			if tt.wantBlocked {
				assert.Equal(t, SafeMessages[tt.wantCategory], d.Message)
			} else {
				assert.Empty(t, d.Message)
			}
		})
	}
}

func TestSeverityOrder(t *testing.T) {
	gate := New(true, nil)

	// Self-harm and minors cues together resolve to the more severe category.
	d := gate.Decide("explicit self-harm content involving a child")
	assert.True(t, d.Blocked)
	assert.Equal(t, CategorySexualMinors, d.Category)
}

func TestDisabledGateAllowsEverything(t *testing.T) {
	gate := New(false, nil)

	d := gate.Decide("I want to end my life")
	assert.False(t, d.Blocked)
}
