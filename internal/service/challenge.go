package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ranking-engine/internal/config"
	"github.com/ranking-engine/internal/domain"
)

// ChallengeStore is the persistence capability set the rotation selector
// needs. Implemented by the postgres repository.
type ChallengeStore interface {
	GetChallengeByDate(ctx context.Context, date time.Time) (*domain.DailyChallenge, error)
	CreateChallenge(ctx context.Context, ch *domain.DailyChallenge) error
	UpsertChallenge(ctx context.Context, ch *domain.DailyChallenge) error
	DeleteChallengeByDate(ctx context.Context, date time.Time) error
	PickNeverFeatured(ctx context.Context) (string, error)
	PickOutsideCooldown(ctx context.Context, since time.Time) (string, error)
	PickLeastRecentlyFeatured(ctx context.Context) (string, error)
	PickAnyPublished(ctx context.Context) (string, error)
	GetProblem(ctx context.Context, problemID string) (*domain.Problem, error)
	GetProblemStat(ctx context.Context, userID, problemID string) (*domain.ProblemStat, error)
}

// ChallengeCache caches the resolved challenge per day. Optional.
type ChallengeCache interface {
	GetChallenge(ctx context.Context, date time.Time) (*domain.DailyChallenge, error)
	SetChallenge(ctx context.Context, ch *domain.DailyChallenge, ttl time.Duration) error
	DropChallenge(ctx context.Context, date time.Time) error
}

// ChallengeService rotates problems into daily challenges and composes the
// challenge view for a viewer.
type ChallengeService struct {
	store  ChallengeStore
	cache  ChallengeCache
	config *config.ChallengeConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewChallengeService creates a new challenge service
func NewChallengeService(store ChallengeStore, cache ChallengeCache, cfg *config.ChallengeConfig, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreate resolves the challenge for a date, creating it through the
// rotation tiers when absent. Once a date has a row the selector never
// mutates it. A concurrent creation losing the unique-date race re-reads and
// returns the winner's row instead of failing.
func (s *ChallengeService) GetOrCreate(ctx context.Context, date time.Time) (*domain.DailyChallenge, error) {
	day := domain.DayOf(date)

	if s.cache != nil {
		cached, err := s.cache.GetChallenge(ctx, day)
		if err != nil {
			s.logger.Warn("challenge cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	ch, err := s.store.GetChallengeByDate(ctx, day)
	if err == nil {
		s.cacheChallenge(ctx, ch)
		return ch, nil
	}
	if !errors.Is(err, domain.ErrChallengeNotFound) {
		return nil, fmt.Errorf("looking up daily challenge: %w", err)
	}

	problemID, err := s.selectProblem(ctx)
	if err != nil {
		return nil, err
	}

	ch = &domain.DailyChallenge{
		ID:        uuid.New().String(),
		Date:      day,
		ProblemID: problemID,
		XPBonus:   s.config.DefaultXPBonus,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.CreateChallenge(ctx, ch); err != nil {
		if errors.Is(err, domain.ErrChallengeExists) {
			// Lost the race; someone else created today's challenge
			// between our lookup and insert. Their row wins.
			existing, fetchErr := s.store.GetChallengeByDate(ctx, day)
			if fetchErr != nil {
				return nil, fmt.Errorf("refetching challenge after conflict: %w", fetchErr)
			}
			s.cacheChallenge(ctx, existing)
			return existing, nil
		}
		return nil, fmt.Errorf("creating daily challenge: %w", err)
	}

	s.logger.Info("daily challenge created",
		"date", day.Format("2006-01-02"),
		"problem_id", problemID,
	)

	s.cacheChallenge(ctx, ch)
	return ch, nil
}

// selectProblem walks the rotation tiers until one yields a candidate:
// never featured, then outside the cooldown window, then the least recently
// featured, then any published problem. All four tiers empty means the
// catalog has no published problems at all.
func (s *ChallengeService) selectProblem(ctx context.Context) (string, error) {
	cooldownStart := s.now().UTC().AddDate(0, 0, -s.config.CooldownDays)

	tiers := []func(context.Context) (string, error){
		s.store.PickNeverFeatured,
		func(ctx context.Context) (string, error) {
			return s.store.PickOutsideCooldown(ctx, cooldownStart)
		},
		s.store.PickLeastRecentlyFeatured,
		s.store.PickAnyPublished,
	}

	for _, pick := range tiers {
		problemID, err := pick(ctx)
		if err == nil {
			return problemID, nil
		}
		if !errors.Is(err, domain.ErrProblemNotFound) {
			return "", fmt.Errorf("selecting rotation candidate: %w", err)
		}
	}
	return "", domain.ErrNoPublishedProblems
}

func (s *ChallengeService) cacheChallenge(ctx context.Context, ch *domain.DailyChallenge) {
	if s.cache == nil || ch == nil {
		return
	}
	now := s.now()
	ttl := domain.NextReset(now).Sub(now)
	if ttl <= 0 {
		return
	}
	if err := s.cache.SetChallenge(ctx, ch, ttl); err != nil {
		s.logger.Warn("challenge cache write failed", "error", err)
	}
}

// GetChallengeView resolves the day's challenge and composes the viewer's
// progress on it. Pure given its inputs; nothing is written beyond the
// getOrCreate resolution itself.
func (s *ChallengeService) GetChallengeView(ctx context.Context, date time.Time, viewerID string) (*domain.ChallengeView, error) {
	ch, err := s.GetOrCreate(ctx, date)
	if err != nil {
		return nil, err
	}

	problem, err := s.store.GetProblem(ctx, ch.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("loading challenge problem: %w", err)
	}

	now := s.now()
	view := &domain.ChallengeView{
		Challenge:      *ch,
		Problem:        *problem,
		TimeUntilReset: domain.NextReset(now).Sub(now).Milliseconds(),
	}

	if viewerID != "" {
		stat, err := s.store.GetProblemStat(ctx, viewerID, ch.ProblemID)
		if err != nil {
			return nil, fmt.Errorf("loading viewer progress: %w", err)
		}
		if stat != nil && stat.Solved {
			view.Completed = true
			// The bonus requires solving on the challenge day itself,
			// not a solve carried over from history.
			view.EarnedBonus = stat.SolvedAt != nil && !stat.SolvedAt.Before(ch.Date)
		}
	}

	return view, nil
}

// Schedule sets the challenge for a date by administrative override,
// bypassing the rotation tiers. The only validation kept is that the problem
// must be published.
func (s *ChallengeService) Schedule(ctx context.Context, date time.Time, problemID string, xpBonus int64) (*domain.DailyChallenge, error) {
	if problemID == "" {
		return nil, domain.ErrInvalidRequest
	}

	problem, err := s.store.GetProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if !problem.Published() {
		return nil, domain.ErrProblemNotPublished
	}

	if xpBonus <= 0 {
		xpBonus = s.config.DefaultXPBonus
	}

	ch := &domain.DailyChallenge{
		ID:        uuid.New().String(),
		Date:      domain.DayOf(date),
		ProblemID: problemID,
		XPBonus:   xpBonus,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.UpsertChallenge(ctx, ch); err != nil {
		return nil, fmt.Errorf("scheduling challenge: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.DropChallenge(ctx, ch.Date); err != nil {
			s.logger.Warn("failed to drop cached challenge", "error", err)
		}
	}

	// Replacing an existing date keeps that row's id, so read back the
	// stored row rather than returning the candidate.
	stored, err := s.store.GetChallengeByDate(ctx, ch.Date)
	if err != nil {
		return nil, fmt.Errorf("reading back scheduled challenge: %w", err)
	}
	return stored, nil
}

// Delete removes the challenge for a date.
func (s *ChallengeService) Delete(ctx context.Context, date time.Time) error {
	day := domain.DayOf(date)

	if err := s.store.DeleteChallengeByDate(ctx, day); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.DropChallenge(ctx, day); err != nil {
			s.logger.Warn("failed to drop cached challenge", "error", err)
		}
	}
	return nil
}
