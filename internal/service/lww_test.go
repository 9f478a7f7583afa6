package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLWWApplies(t *testing.T) {
	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tests := []struct {
		name     string
		existing *time.Time
		incoming *time.Time
		want     bool
	}{
		{"incoming newer wins", &older, &newer, true},
		{"incoming older loses", &newer, &older, false},
		{"equal timestamps lose", &older, &older, false},
		{"missing incoming never wins", &older, nil, false},
		{"missing existing always loses", nil, &newer, true},
		{"both missing loses", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lwwApplies(tt.existing, tt.incoming))
		})
	}
}
