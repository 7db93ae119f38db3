package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ranking-engine/internal/config"
	"github.com/ranking-engine/internal/domain"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			total_xp BIGINT NOT NULL DEFAULT 0,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS problems (
			id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			difficulty VARCHAR(20),
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS problem_stats (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			problem_id VARCHAR(64) NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			solved BOOLEAN NOT NULL DEFAULT FALSE,
			solved_at TIMESTAMPTZ,
			hints_used BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE(user_id, problem_id)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			period VARCHAR(16) NOT NULL,
			score BIGINT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, period)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_challenges (
			id VARCHAR(64) PRIMARY KEY,
			challenge_date TIMESTAMPTZ NOT NULL,
			problem_id VARCHAR(64) NOT NULL REFERENCES problems(id),
			xp_bonus BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(challenge_date)
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			code VARCHAR(64) NOT NULL,
			awarded_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_period_score ON leaderboard_entries(period, score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_problem_stats_user ON problem_stats(user_id, solved_at)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_problem ON daily_challenges(problem_id, challenge_date DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertUser refreshes the local mirror of a user owned by the auth
// subsystem. Standing updates only need the id; the username is display-only.
func (r *Repository) UpsertUser(ctx context.Context, userID, username string, totalXP int64) error {
	query := `
		INSERT INTO users (id, username, total_xp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id)
		DO UPDATE SET username = COALESCE(NULLIF($2, ''), users.username), total_xp = $3, updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query, userID, username, totalXP, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// UpsertLeaderboardEntry inserts or updates a user's standing for one period.
// The unique (user_id, period) key plus ON CONFLICT keeps concurrent writers
// from racing a blind insert; last write wins on score.
func (r *Repository) UpsertLeaderboardEntry(ctx context.Context, userID string, period domain.Period, score int64) error {
	query := `
		INSERT INTO leaderboard_entries (user_id, period, score, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, period)
		DO UPDATE SET score = $3, updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query, userID, string(period), score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting leaderboard entry: %w", err)
	}
	return nil
}

// activityFilter restricts a windowed period to users with at least one
// accepted solve inside the qualifying window.
const activityFilter = `EXISTS (
			SELECT 1 FROM problem_stats ps
			WHERE ps.user_id = e.user_id AND ps.solved AND ps.solved_at >= $2
		)`

// ListEntries fetches one page of standings for a period ordered by score
// descending. windowStart is nil for ALL_TIME. Rows come back with identity
// and scores only; ranks and derived stats are assigned by the caller.
func (r *Repository) ListEntries(ctx context.Context, period domain.Period, windowStart *time.Time, limit, offset int) ([]domain.LeaderboardRow, error) {
	query := `
		SELECT e.user_id, COALESCE(u.username, e.user_id), e.score, COALESCE(u.total_xp, e.score)
		FROM leaderboard_entries e
		LEFT JOIN users u ON u.id = e.user_id
		WHERE e.period = $1
	`
	args := []interface{}{string(period)}
	if windowStart != nil {
		query += ` AND ` + activityFilter
		args = append(args, *windowStart)
	}
	query += fmt.Sprintf(` ORDER BY e.score DESC, e.user_id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.XP, &row.TotalXP); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountEntries returns the size of a period's rank pool.
func (r *Repository) CountEntries(ctx context.Context, period domain.Period, windowStart *time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM leaderboard_entries e WHERE e.period = $1`
	args := []interface{}{string(period)}
	if windowStart != nil {
		query += ` AND ` + activityFilter
		args = append(args, *windowStart)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting leaderboard entries: %w", err)
	}
	return count, nil
}

// GetEntryScore returns a user's stored score for a period.
func (r *Repository) GetEntryScore(ctx context.Context, userID string, period domain.Period) (int64, error) {
	query := `SELECT score FROM leaderboard_entries WHERE user_id = $1 AND period = $2`
	var score int64
	err := r.pool.QueryRow(ctx, query, userID, string(period)).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("getting entry score: %w", err)
	}
	return score, nil
}

// CountHigher counts entries with a strictly greater score, i.e. rank - 1.
func (r *Repository) CountHigher(ctx context.Context, period domain.Period, score int64, windowStart *time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM leaderboard_entries e WHERE e.period = $1 AND e.score > $2`
	args := []interface{}{string(period), score}
	if windowStart != nil {
		query += ` AND EXISTS (
			SELECT 1 FROM problem_stats ps
			WHERE ps.user_id = e.user_id AND ps.solved AND ps.solved_at >= $3
		)`
		args = append(args, *windowStart)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting higher scores: %w", err)
	}
	return count, nil
}

// UserStats aggregates lifetime solve history for a batch of users. Users
// with no activity come back zero-valued.
func (r *Repository) UserStats(ctx context.Context, userIDs []string) (map[string]*domain.UserStats, error) {
	stats := make(map[string]*domain.UserStats, len(userIDs))
	for _, id := range userIDs {
		stats[id] = &domain.UserStats{UserID: id}
	}
	if len(userIDs) == 0 {
		return stats, nil
	}

	query := `
		SELECT user_id,
		       COUNT(*) FILTER (WHERE solved),
		       COUNT(*)
		FROM problem_stats
		WHERE user_id = ANY($1)
		GROUP BY user_id
	`
	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("aggregating problem stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var accepted, attempted int
		if err := rows.Scan(&userID, &accepted, &attempted); err != nil {
			return nil, fmt.Errorf("scanning problem stats: %w", err)
		}
		if s, ok := stats[userID]; ok {
			s.AcceptedCount = accepted
			s.AttemptedCount = attempted
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	achQuery := `SELECT user_id, COUNT(*) FROM achievements WHERE user_id = ANY($1) GROUP BY user_id`
	achRows, err := r.pool.Query(ctx, achQuery, userIDs)
	if err != nil {
		return nil, fmt.Errorf("counting achievements: %w", err)
	}
	defer achRows.Close()

	for achRows.Next() {
		var userID string
		var count int
		if err := achRows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scanning achievements: %w", err)
		}
		if s, ok := stats[userID]; ok {
			s.AchievementCount = count
		}
	}
	return stats, achRows.Err()
}

// SolveTimes returns each user's accepted solve timestamps for streak
// derivation.
func (r *Repository) SolveTimes(ctx context.Context, userIDs []string) (map[string][]time.Time, error) {
	out := make(map[string][]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT user_id, solved_at
		FROM problem_stats
		WHERE user_id = ANY($1) AND solved AND solved_at IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching solve times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var solvedAt time.Time
		if err := rows.Scan(&userID, &solvedAt); err != nil {
			return nil, fmt.Errorf("scanning solve time: %w", err)
		}
		out[userID] = append(out[userID], solvedAt)
	}
	return out, rows.Err()
}

// GetChallengeByDate retrieves the daily challenge for a UTC day.
func (r *Repository) GetChallengeByDate(ctx context.Context, date time.Time) (*domain.DailyChallenge, error) {
	query := `
		SELECT id, challenge_date, problem_id, xp_bonus, created_at
		FROM daily_challenges
		WHERE challenge_date = $1
	`
	var ch domain.DailyChallenge
	err := r.pool.QueryRow(ctx, query, date).Scan(&ch.ID, &ch.Date, &ch.ProblemID, &ch.XPBonus, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("getting daily challenge: %w", err)
	}
	return &ch, nil
}

// CreateChallenge inserts a new daily challenge. The unique challenge_date
// constraint is the race guard: a concurrent creation for the same day comes
// back as ErrChallengeExists, and the caller re-reads the winner's row.
func (r *Repository) CreateChallenge(ctx context.Context, ch *domain.DailyChallenge) error {
	query := `
		INSERT INTO daily_challenges (id, challenge_date, problem_id, xp_bonus, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, ch.ID, ch.Date, ch.ProblemID, ch.XPBonus, ch.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrChallengeExists
		}
		return fmt.Errorf("creating daily challenge: %w", err)
	}
	return nil
}

// UpsertChallenge schedules or replaces the challenge for a day. Used by the
// administrative override, not by rotation.
func (r *Repository) UpsertChallenge(ctx context.Context, ch *domain.DailyChallenge) error {
	query := `
		INSERT INTO daily_challenges (id, challenge_date, problem_id, xp_bonus, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (challenge_date)
		DO UPDATE SET problem_id = $3, xp_bonus = $4
	`
	_, err := r.pool.Exec(ctx, query, ch.ID, ch.Date, ch.ProblemID, ch.XPBonus, ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting daily challenge: %w", err)
	}
	return nil
}

// DeleteChallengeByDate removes the challenge for a day.
func (r *Repository) DeleteChallengeByDate(ctx context.Context, date time.Time) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM daily_challenges WHERE challenge_date = $1`, date)
	if err != nil {
		return fmt.Errorf("deleting daily challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrChallengeNotFound
	}
	return nil
}

// PickNeverFeatured selects the oldest published problem that has never been
// a daily challenge.
func (r *Repository) PickNeverFeatured(ctx context.Context) (string, error) {
	query := `
		SELECT p.id
		FROM problems p
		WHERE p.published_at IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM daily_challenges dc WHERE dc.problem_id = p.id)
		ORDER BY p.created_at ASC
		LIMIT 1
	`
	return r.pickProblem(ctx, query)
}

// PickOutsideCooldown selects the oldest published problem not featured since
// the given cutoff.
func (r *Repository) PickOutsideCooldown(ctx context.Context, since time.Time) (string, error) {
	query := `
		SELECT p.id
		FROM problems p
		WHERE p.published_at IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM daily_challenges dc
			WHERE dc.problem_id = p.id AND dc.challenge_date >= $1
		  )
		ORDER BY p.created_at ASC
		LIMIT 1
	`
	return r.pickProblem(ctx, query, since)
}

// PickLeastRecentlyFeatured selects the published problem carried by the
// oldest-dated existing challenge.
func (r *Repository) PickLeastRecentlyFeatured(ctx context.Context) (string, error) {
	query := `
		SELECT dc.problem_id
		FROM daily_challenges dc
		JOIN problems p ON p.id = dc.problem_id AND p.published_at IS NOT NULL
		GROUP BY dc.problem_id
		ORDER BY MAX(dc.challenge_date) ASC
		LIMIT 1
	`
	return r.pickProblem(ctx, query)
}

// PickAnyPublished selects the oldest published problem without restrictions.
func (r *Repository) PickAnyPublished(ctx context.Context) (string, error) {
	query := `
		SELECT id FROM problems
		WHERE published_at IS NOT NULL
		ORDER BY created_at ASC
		LIMIT 1
	`
	return r.pickProblem(ctx, query)
}

func (r *Repository) pickProblem(ctx context.Context, query string, args ...interface{}) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrProblemNotFound
		}
		return "", fmt.Errorf("selecting rotation candidate: %w", err)
	}
	return id, nil
}

// GetProblem retrieves a catalog problem by ID.
func (r *Repository) GetProblem(ctx context.Context, problemID string) (*domain.Problem, error) {
	query := `SELECT id, title, COALESCE(difficulty, ''), published_at, created_at FROM problems WHERE id = $1`
	var p domain.Problem
	err := r.pool.QueryRow(ctx, query, problemID).Scan(&p.ID, &p.Title, &p.Difficulty, &p.PublishedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, fmt.Errorf("getting problem: %w", err)
	}
	return &p, nil
}

// GetProblemStat retrieves a user's progress on one problem. A (nil, nil)
// return means the user has never touched the problem.
func (r *Repository) GetProblemStat(ctx context.Context, userID, problemID string) (*domain.ProblemStat, error) {
	query := `
		SELECT user_id, problem_id, solved, solved_at, hints_used
		FROM problem_stats
		WHERE user_id = $1 AND problem_id = $2
	`
	var st domain.ProblemStat
	err := r.pool.QueryRow(ctx, query, userID, problemID).Scan(&st.UserID, &st.ProblemID, &st.Solved, &st.SolvedAt, &st.HintsUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting problem stat: %w", err)
	}
	return &st, nil
}
