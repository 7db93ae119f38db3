package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ranking-engine/internal/config"
	"github.com/ranking-engine/internal/domain"
)

// RankingStore is the persistence capability set the ranking service needs.
// Implemented by the postgres repository.
type RankingStore interface {
	UpsertUser(ctx context.Context, userID, username string, totalXP int64) error
	UpsertLeaderboardEntry(ctx context.Context, userID string, period domain.Period, score int64) error
	ListEntries(ctx context.Context, period domain.Period, windowStart *time.Time, limit, offset int) ([]domain.LeaderboardRow, error)
	CountEntries(ctx context.Context, period domain.Period, windowStart *time.Time) (int64, error)
	GetEntryScore(ctx context.Context, userID string, period domain.Period) (int64, error)
	CountHigher(ctx context.Context, period domain.Period, score int64, windowStart *time.Time) (int64, error)
	UserStats(ctx context.Context, userIDs []string) (map[string]*domain.UserStats, error)
	SolveTimes(ctx context.Context, userIDs []string) (map[string][]time.Time, error)
}

// PageCache caches assembled leaderboard pages. Optional.
type PageCache interface {
	GetPage(ctx context.Context, period domain.Period, page, pageSize int) (*domain.LeaderboardPage, error)
	SetPage(ctx context.Context, result *domain.LeaderboardPage, ttl time.Duration) error
	InvalidatePeriod(ctx context.Context, period domain.Period) error
}

// StandingBroadcaster pushes standing changes to live subscribers. Optional.
type StandingBroadcaster interface {
	BroadcastStandingUpdate(period string, entry domain.LeaderboardEntry)
}

// RankingService maintains per-period standings and serves ranked pages.
type RankingService struct {
	store  RankingStore
	cache  PageCache
	hub    StandingBroadcaster
	config *config.LeaderboardConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRankingService creates a new ranking service
func NewRankingService(store RankingStore, cache PageCache, cfg *config.LeaderboardConfig, logger *slog.Logger) *RankingService {
	return &RankingService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetHub attaches a broadcaster for live standing updates.
func (s *RankingService) SetHub(hub StandingBroadcaster) {
	s.hub = hub
}

// UpdateUserStanding records a user's new total XP against every period.
// The score is stored identically for all three; windowed periods differ only
// in the activity filter applied when the pool is read. Ranks are not stored,
// they are always derived at read time.
func (s *RankingService) UpdateUserStanding(ctx context.Context, userID, username string, totalXP int64) error {
	if userID == "" || totalXP < 0 {
		return domain.ErrInvalidRequest
	}

	if err := s.store.UpsertUser(ctx, userID, username, totalXP); err != nil {
		s.logger.Warn("failed to refresh user mirror", "user_id", userID, "error", err)
	}

	for _, period := range domain.Periods {
		if err := s.store.UpsertLeaderboardEntry(ctx, userID, period, totalXP); err != nil {
			return fmt.Errorf("updating standing for %s: %w", period, err)
		}
	}

	s.invalidateAll(ctx)

	if s.hub != nil {
		entry := domain.LeaderboardEntry{
			UserID:    userID,
			Score:     totalXP,
			UpdatedAt: s.now().UTC(),
		}
		for _, period := range domain.Periods {
			entry.Period = period
			s.hub.BroadcastStandingUpdate(string(period), entry)
		}
	}

	return nil
}

func (s *RankingService) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, period := range domain.Periods {
		if err := s.cache.InvalidatePeriod(ctx, period); err != nil {
			s.logger.Warn("failed to invalidate page cache", "period", period, "error", err)
		}
	}
}

// GetLeaderboardPage returns one page of the period's standings with dense
// tie-aware ranks continued from the page offset, plus derived display stats.
func (s *RankingService) GetLeaderboardPage(ctx context.Context, period domain.Period, page, pageSize int) (*domain.LeaderboardPage, error) {
	if page < 1 {
		return nil, domain.ErrInvalidPage
	}
	if pageSize <= 0 {
		pageSize = s.config.DefaultPageSize
	}
	if pageSize > s.config.MaxPageSize {
		pageSize = s.config.MaxPageSize
	}

	if s.cache != nil {
		cached, err := s.cache.GetPage(ctx, period, page, pageSize)
		if err != nil {
			s.logger.Warn("page cache read failed", "period", period, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	var windowStart *time.Time
	if start, ok := period.WindowStart(s.now()); ok {
		windowStart = &start
	}

	offset := (page - 1) * pageSize
	rows, err := s.store.ListEntries(ctx, period, windowStart, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching leaderboard page: %w", err)
	}

	total, err := s.store.CountEntries(ctx, period, windowStart)
	if err != nil {
		return nil, fmt.Errorf("counting leaderboard entries: %w", err)
	}

	domain.AssignPageRanks(rows, offset+1)

	if err := s.enrich(ctx, rows); err != nil {
		return nil, err
	}

	result := &domain.LeaderboardPage{
		Period:     period,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		Entries:    rows,
	}

	if s.cache != nil {
		if err := s.cache.SetPage(ctx, result, s.config.CacheTTL); err != nil {
			s.logger.Warn("page cache write failed", "period", period, "error", err)
		}
	}

	return result, nil
}

// enrich fills in the derived per-user stats for a page of rows.
func (s *RankingService) enrich(ctx context.Context, rows []domain.LeaderboardRow) error {
	if len(rows) == 0 {
		return nil
	}

	userIDs := make([]string, len(rows))
	for i, row := range rows {
		userIDs[i] = row.UserID
	}

	stats, err := s.store.UserStats(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("fetching user stats: %w", err)
	}
	solveTimes, err := s.store.SolveTimes(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("fetching solve times: %w", err)
	}

	now := s.now()
	for i := range rows {
		row := &rows[i]
		row.Level = domain.LevelForXP(row.TotalXP)
		row.CurrentStreak = domain.CurrentStreak(now, solveTimes[row.UserID])
		if st, ok := stats[row.UserID]; ok && st != nil {
			row.AcceptanceRate = domain.AcceptanceRate(st.AcceptedCount, st.AttemptedCount)
			row.SolvedCount = st.AcceptedCount
			row.AchievementCount = st.AchievementCount
		}
	}
	return nil
}

// GetUserRank returns a user's all-time rank and percentile. The rank is
// derived by counting strictly greater scores at read time, never trusted
// from a stored value.
func (s *RankingService) GetUserRank(ctx context.Context, userID string) (*domain.RankSummary, error) {
	if userID == "" {
		return nil, domain.ErrInvalidRequest
	}

	score, err := s.store.GetEntryScore(ctx, userID, domain.PeriodAllTime)
	if err != nil {
		return nil, err
	}

	higher, err := s.store.CountHigher(ctx, domain.PeriodAllTime, score, nil)
	if err != nil {
		return nil, fmt.Errorf("counting higher scores: %w", err)
	}
	total, err := s.store.CountEntries(ctx, domain.PeriodAllTime, nil)
	if err != nil {
		return nil, fmt.Errorf("counting entries: %w", err)
	}

	rank := higher + 1
	return &domain.RankSummary{
		UserID:     userID,
		Rank:       rank,
		TotalUsers: total,
		Percentile: domain.Percentile(rank, total),
	}, nil
}
