package domain

import (
	"math"
	"time"
)

// LeaderboardEntry is one persisted standing: a user's score within a period.
// Ranks are never stored; they are derived at read time from the live ordering
// because inserts and score changes would silently invalidate a cached rank.
type LeaderboardEntry struct {
	UserID    string    `json:"user_id"`
	Period    Period    `json:"period"`
	Score     int64     `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaderboardRow is a display-ready leaderboard line: a standing plus the
// derived stats the leaderboard page shows for each user. For windowed
// periods XP carries the period score while TotalXP stays lifetime.
type LeaderboardRow struct {
	Rank             int    `json:"rank"`
	UserID           string `json:"user_id"`
	Username         string `json:"username"`
	XP               int64  `json:"xp"`
	TotalXP          int64  `json:"total_xp"`
	Level            int    `json:"level"`
	AcceptanceRate   int    `json:"acceptance_rate"`
	CurrentStreak    int    `json:"current_streak"`
	SolvedCount      int    `json:"solved_count"`
	AchievementCount int    `json:"achievement_count"`
}

// LeaderboardPage is the paged ranking response.
type LeaderboardPage struct {
	Period     Period           `json:"period"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalCount int64            `json:"total_count"`
	Entries    []LeaderboardRow `json:"entries"`
}

// RankSummary is a single user's all-time standing.
type RankSummary struct {
	UserID     string `json:"user_id"`
	Rank       int64  `json:"rank"`
	TotalUsers int64  `json:"total_users"`
	Percentile int    `json:"percentile"`
}

// UserStats aggregates a user's lifetime solve history.
type UserStats struct {
	UserID           string
	Username         string
	AcceptedCount    int
	AttemptedCount   int
	AchievementCount int
	SolveTimes       []time.Time
}

// LevelForXP maps lifetime XP to a level: floor(sqrt(xp/5)) + 1.
func LevelForXP(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return int(math.Sqrt(float64(xp)/5)) + 1
}

// AcceptanceRate returns accepted/attempted as a percentage rounded to the
// nearest integer, 0 when the user has attempted nothing.
func AcceptanceRate(accepted, attempted int) int {
	if attempted <= 0 {
		return 0
	}
	return int(math.Round(float64(accepted) / float64(attempted) * 100))
}

// Percentile converts a 1-based rank into a 0-100 percentile. Undefined for
// an empty pool, so total <= 0 reports 0.
func Percentile(rank, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(total-rank) / float64(total) * 100))
}

// AssignPageRanks writes dense, tie-sharing ranks into a page of rows already
// ordered by score descending. The first row gets startRank (the 1-based
// position of the page's first row in the full ordering). Equal scores share
// a rank; the next distinct score resumes at startRank plus its index within
// the page. Ties spanning a page boundary may therefore see a different rank
// depending on which page lists them first; that discontinuity is deliberate.
func AssignPageRanks(rows []LeaderboardRow, startRank int) {
	for i := range rows {
		if i > 0 && rows[i].XP == rows[i-1].XP {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = startRank + i
	}
}
