package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCurrentStreak(t *testing.T) {
	now := time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		solves []time.Time
		want   int
	}{
		{
			name:   "no solves",
			solves: nil,
			want:   0,
		},
		{
			name: "three consecutive days ending today",
			solves: []time.Time{
				day("2024-06-15"), day("2024-06-14"), day("2024-06-13"),
			},
			want: 3,
		},
		{
			name: "gap before the run does not extend it",
			solves: []time.Time{
				day("2024-06-15"), day("2024-06-14"), day("2024-06-13"),
				day("2024-06-11"), // 06-12 missing
			},
			want: 3,
		},
		{
			name: "no solve today anchors on yesterday",
			solves: []time.Time{
				day("2024-06-14"), day("2024-06-13"),
			},
			want: 2,
		},
		{
			name: "last solve two days ago is a broken streak",
			solves: []time.Time{
				day("2024-06-13"), day("2024-06-12"),
			},
			want: 0,
		},
		{
			name: "multiple solves in one day count once",
			solves: []time.Time{
				day("2024-06-15").Add(2 * time.Hour),
				day("2024-06-15").Add(20 * time.Hour),
				day("2024-06-14").Add(5 * time.Hour),
			},
			want: 2,
		},
		{
			name: "only today",
			solves: []time.Time{
				day("2024-06-15").Add(9 * time.Hour),
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(now, tt.solves))
		})
	}
}

func TestCurrentStreakUsesUTCDays(t *testing.T) {
	// 23:30 UTC on the 14th in a +03:00 zone is already the 15th locally;
	// the streak must still treat it as the 14th.
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2024, 6, 15, 1, 0, 0, 0, time.UTC)

	solves := []time.Time{
		time.Date(2024, 6, 15, 2, 30, 0, 0, loc), // 2024-06-14 23:30 UTC
	}
	assert.Equal(t, 1, CurrentStreak(now, solves))
}
