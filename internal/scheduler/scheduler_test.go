package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarketHoursOpen(t *testing.T) {
	hours := MarketHours{OpenMinute: 9*60 + 15, CloseMinute: 15*60 + 30}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday mid-session", time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC), true},
		{"opening bell", time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC), true},
		{"closing minute inclusive", time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC), true},
		{"one minute before open", time.Date(2026, 8, 24, 9, 14, 0, 0, time.UTC), false},
		{"after close", time.Date(2026, 8, 24, 15, 31, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC), false},
		{"friday close", time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, hours.Open(tc.at))
		})
	}
}
