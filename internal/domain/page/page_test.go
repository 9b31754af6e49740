package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name               string
		limit, offset      int
		wantLimit, wantOff int
	}{
		{"defaults", 0, 0, DefaultLimit, 0},
		{"negative limit", -5, 10, DefaultLimit, 10},
		{"within range", 20, 40, 20, 40},
		{"at max", MaxLimit, 0, MaxLimit, 0},
		{"above max is capped", 1000, 0, MaxLimit, 0},
		{"negative offset", 10, -1, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := Clamp(tt.limit, tt.offset)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOff, offset)
		})
	}
}
