package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/ranking-engine/internal/config"
	"github.com/ranking-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRankingStore is an in-memory RankingStore for tests.
type fakeRankingStore struct {
	entries   map[domain.Period]map[string]int64
	usernames map[string]string
	totalXP   map[string]int64
	stats     map[string]*domain.UserStats
	solves    map[string][]time.Time
}

func newFakeRankingStore() *fakeRankingStore {
	return &fakeRankingStore{
		entries:   make(map[domain.Period]map[string]int64),
		usernames: make(map[string]string),
		totalXP:   make(map[string]int64),
		stats:     make(map[string]*domain.UserStats),
		solves:    make(map[string][]time.Time),
	}
}

func (f *fakeRankingStore) seedEntry(userID string, period domain.Period, score int64) {
	if f.entries[period] == nil {
		f.entries[period] = make(map[string]int64)
	}
	f.entries[period][userID] = score
}

func (f *fakeRankingStore) UpsertUser(_ context.Context, userID, username string, totalXP int64) error {
	if username != "" {
		f.usernames[userID] = username
	}
	f.totalXP[userID] = totalXP
	return nil
}

func (f *fakeRankingStore) UpsertLeaderboardEntry(_ context.Context, userID string, period domain.Period, score int64) error {
	f.seedEntry(userID, period, score)
	return nil
}

func (f *fakeRankingStore) qualifies(userID string, windowStart *time.Time) bool {
	if windowStart == nil {
		return true
	}
	for _, solvedAt := range f.solves[userID] {
		if !solvedAt.Before(*windowStart) {
			return true
		}
	}
	return false
}

func (f *fakeRankingStore) ordered(period domain.Period, windowStart *time.Time) []domain.LeaderboardRow {
	var rows []domain.LeaderboardRow
	for userID, score := range f.entries[period] {
		if !f.qualifies(userID, windowStart) {
			continue
		}
		totalXP, ok := f.totalXP[userID]
		if !ok {
			totalXP = score
		}
		username := f.usernames[userID]
		if username == "" {
			username = userID
		}
		rows = append(rows, domain.LeaderboardRow{
			UserID:   userID,
			Username: username,
			XP:       score,
			TotalXP:  totalXP,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].XP != rows[j].XP {
			return rows[i].XP > rows[j].XP
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

func (f *fakeRankingStore) ListEntries(_ context.Context, period domain.Period, windowStart *time.Time, limit, offset int) ([]domain.LeaderboardRow, error) {
	rows := f.ordered(period, windowStart)
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeRankingStore) CountEntries(_ context.Context, period domain.Period, windowStart *time.Time) (int64, error) {
	return int64(len(f.ordered(period, windowStart))), nil
}

func (f *fakeRankingStore) GetEntryScore(_ context.Context, userID string, period domain.Period) (int64, error) {
	score, ok := f.entries[period][userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return score, nil
}

func (f *fakeRankingStore) CountHigher(_ context.Context, period domain.Period, score int64, windowStart *time.Time) (int64, error) {
	var count int64
	for userID, s := range f.entries[period] {
		if s > score && f.qualifies(userID, windowStart) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRankingStore) UserStats(_ context.Context, userIDs []string) (map[string]*domain.UserStats, error) {
	out := make(map[string]*domain.UserStats, len(userIDs))
	for _, id := range userIDs {
		if st, ok := f.stats[id]; ok {
			out[id] = st
		} else {
			out[id] = &domain.UserStats{UserID: id}
		}
	}
	return out, nil
}

func (f *fakeRankingStore) SolveTimes(_ context.Context, userIDs []string) (map[string][]time.Time, error) {
	out := make(map[string][]time.Time, len(userIDs))
	for _, id := range userIDs {
		out[id] = f.solves[id]
	}
	return out, nil
}

func newTestRanking(store *fakeRankingStore) *RankingService {
	cfg := &config.LeaderboardConfig{DefaultPageSize: 25, MaxPageSize: 100, CacheTTL: time.Second}
	s := NewRankingService(store, nil, cfg, testLogger())
	s.now = func() time.Time { return testNow }
	return s
}

func TestUpdateUserStandingWritesAllPeriods(t *testing.T) {
	store := newFakeRankingStore()
	s := newTestRanking(store)

	err := s.UpdateUserStanding(context.Background(), "u1", "alice", 340)
	require.NoError(t, err)

	for _, period := range domain.Periods {
		score, err := store.GetEntryScore(context.Background(), "u1", period)
		require.NoError(t, err, "period %s", period)
		assert.Equal(t, int64(340), score)
	}
}

func TestUpdateUserStandingLastWriteWins(t *testing.T) {
	store := newFakeRankingStore()
	s := newTestRanking(store)

	require.NoError(t, s.UpdateUserStanding(context.Background(), "u1", "", 100))
	require.NoError(t, s.UpdateUserStanding(context.Background(), "u1", "", 180))

	score, err := store.GetEntryScore(context.Background(), "u1", domain.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, int64(180), score)
}

func TestUpdateUserStandingRejectsInvalidInput(t *testing.T) {
	s := newTestRanking(newFakeRankingStore())

	assert.ErrorIs(t, s.UpdateUserStanding(context.Background(), "", "", 10), domain.ErrInvalidRequest)
	assert.ErrorIs(t, s.UpdateUserStanding(context.Background(), "u1", "", -5), domain.ErrInvalidRequest)
}

func TestGetLeaderboardPageWeeklyActivityFilter(t *testing.T) {
	store := newFakeRankingStore()
	// Three users with all-time entries, but only the top two solved
	// something in the last 7 days.
	for _, period := range domain.Periods {
		store.seedEntry("u1", period, 50)
		store.seedEntry("u2", period, 50)
		store.seedEntry("u3", period, 30)
	}
	store.solves["u1"] = []time.Time{testNow.Add(-24 * time.Hour)}
	store.solves["u2"] = []time.Time{testNow.Add(-48 * time.Hour)}
	store.solves["u3"] = []time.Time{testNow.Add(-30 * 24 * time.Hour)}

	s := newTestRanking(store)

	page, err := s.GetLeaderboardPage(context.Background(), domain.PeriodWeekly, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(2), page.TotalCount, "inactive user excluded from the weekly pool")
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 1, page.Entries[0].Rank)
	assert.Equal(t, 1, page.Entries[1].Rank, "equal scores share the top rank")

	// The same user still appears all-time.
	allTime, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), allTime.TotalCount)
}

func TestGetLeaderboardPageRanksContinueFromOffset(t *testing.T) {
	store := newFakeRankingStore()
	scores := []int64{100, 100, 90, 80, 80, 70}
	for i, score := range scores {
		store.seedEntry(string(rune('a'+i)), domain.PeriodAllTime, score)
	}
	s := newTestRanking(store)

	page1, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1.Entries, 2)
	assert.Equal(t, 1, page1.Entries[0].Rank)
	assert.Equal(t, 1, page1.Entries[1].Rank, "tie within the page shares a rank")

	page2, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 2)
	assert.Equal(t, 3, page2.Entries[0].Rank, "first row of page 2 starts at offset+1")
	assert.Equal(t, 4, page2.Entries[1].Rank)

	page3, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3.Entries, 2)
	assert.Equal(t, 5, page3.Entries[0].Rank)
	assert.Equal(t, 6, page3.Entries[1].Rank)
}

func TestGetLeaderboardPageEnrichment(t *testing.T) {
	store := newFakeRankingStore()
	store.seedEntry("u1", domain.PeriodAllTime, 125)
	store.totalXP["u1"] = 125
	store.usernames["u1"] = "alice"
	store.stats["u1"] = &domain.UserStats{
		UserID:           "u1",
		AcceptedCount:    2,
		AttemptedCount:   3,
		AchievementCount: 4,
	}
	store.solves["u1"] = []time.Time{testNow, testNow.Add(-24 * time.Hour)}

	s := newTestRanking(store)
	page, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)

	row := page.Entries[0]
	assert.Equal(t, "alice", row.Username)
	assert.Equal(t, 6, row.Level, "125 XP maps to level 6")
	assert.Equal(t, 67, row.AcceptanceRate)
	assert.Equal(t, 2, row.SolvedCount)
	assert.Equal(t, 4, row.AchievementCount)
	assert.Equal(t, 2, row.CurrentStreak)
}

func TestGetLeaderboardPageValidation(t *testing.T) {
	s := newTestRanking(newFakeRankingStore())

	_, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidPage)

	// Oversized page sizes clamp instead of failing.
	page, err := s.GetLeaderboardPage(context.Background(), domain.PeriodAllTime, 1, 10_000)
	require.NoError(t, err)
	assert.Equal(t, 100, page.PageSize)
}

func TestGetUserRank(t *testing.T) {
	store := newFakeRankingStore()
	store.seedEntry("u1", domain.PeriodAllTime, 100)
	store.seedEntry("u2", domain.PeriodAllTime, 90)
	store.seedEntry("u3", domain.PeriodAllTime, 90)

	s := newTestRanking(store)

	summary, err := s.GetUserRank(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Rank, "tied users share rank 2")
	assert.Equal(t, int64(3), summary.TotalUsers)
	assert.Equal(t, 33, summary.Percentile)

	top, err := s.GetUserRank(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), top.Rank)
	assert.GreaterOrEqual(t, top.Percentile, 0)
	assert.LessOrEqual(t, top.Percentile, 100)
}

func TestGetUserRankNotFound(t *testing.T) {
	s := newTestRanking(newFakeRankingStore())

	_, err := s.GetUserRank(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
