package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rowsWithScores(scores ...int64) []LeaderboardRow {
	rows := make([]LeaderboardRow, len(scores))
	for i, s := range scores {
		rows[i].XP = s
	}
	return rows
}

func ranksOf(rows []LeaderboardRow) []int {
	ranks := make([]int, len(rows))
	for i, r := range rows {
		ranks[i] = r.Rank
	}
	return ranks
}

func TestAssignPageRanks(t *testing.T) {
	tests := []struct {
		name      string
		scores    []int64
		startRank int
		want      []int
	}{
		{
			name:      "distinct scores on first page",
			scores:    []int64{100, 90, 80},
			startRank: 1,
			want:      []int{1, 2, 3},
		},
		{
			name:      "ties share a rank",
			scores:    []int64{50, 50, 30},
			startRank: 1,
			want:      []int{1, 1, 3},
		},
		{
			name:      "next distinct score resumes at positional index",
			scores:    []int64{70, 70, 70, 60},
			startRank: 1,
			want:      []int{1, 1, 1, 4},
		},
		{
			name:      "second page continues from offset",
			scores:    []int64{40, 40, 20},
			startRank: 11,
			want:      []int{11, 11, 13},
		},
		{
			name:      "empty page",
			scores:    nil,
			startRank: 1,
			want:      []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := rowsWithScores(tt.scores...)
			AssignPageRanks(rows, tt.startRank)
			assert.Equal(t, tt.want, ranksOf(rows))
		})
	}
}

func TestAssignPageRanksMonotonic(t *testing.T) {
	rows := rowsWithScores(90, 90, 70, 70, 70, 50, 10)
	AssignPageRanks(rows, 1)
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].Rank, rows[i].Rank)
		if rows[i].XP == rows[i-1].XP {
			assert.Equal(t, rows[i-1].Rank, rows[i].Rank)
		}
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{4, 1},
		{5, 2},
		{125, 6}, // floor(sqrt(25)) + 1
		{500, 11},
		{-10, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestAcceptanceRate(t *testing.T) {
	assert.Equal(t, 0, AcceptanceRate(0, 0))
	assert.Equal(t, 100, AcceptanceRate(7, 7))
	assert.Equal(t, 50, AcceptanceRate(1, 2))
	assert.Equal(t, 33, AcceptanceRate(1, 3))
	assert.Equal(t, 67, AcceptanceRate(2, 3))
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0, Percentile(1, 0), "empty pool is guarded")
	assert.Equal(t, 0, Percentile(1, 1))
	assert.Equal(t, 99, Percentile(1, 100))
	assert.Equal(t, 50, Percentile(50, 100))

	// Always within [0, 100] for a non-empty pool
	for rank := int64(1); rank <= 10; rank++ {
		p := Percentile(rank, 10)
		assert.GreaterOrEqual(t, p, 0)
		assert.LessOrEqual(t, p, 100)
	}
}
