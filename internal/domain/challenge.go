package domain

import "time"

// Problem is a catalog item as seen by the rotation selector. A nil
// PublishedAt marks a draft, which never rotates into a challenge.
type Problem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Difficulty  string     `json:"difficulty,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Published reports whether the problem is eligible for rotation.
func (p *Problem) Published() bool {
	return p.PublishedAt != nil
}

// ProblemStat is a user's progress on one problem. Written by the grading
// and hint flows; this core only reads it.
type ProblemStat struct {
	UserID    string     `json:"user_id"`
	ProblemID string     `json:"problem_id"`
	Solved    bool       `json:"solved"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
	HintsUsed bool       `json:"hints_used"`
}

// DailyChallenge is the featured problem for one UTC calendar day. Date is
// unique per day; that constraint is the concurrency guard for rotation.
type DailyChallenge struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	ProblemID string    `json:"problem_id"`
	XPBonus   int64     `json:"xp_bonus"`
	CreatedAt time.Time `json:"created_at"`
}

// ChallengeView is the "today's challenge" response for a viewer.
type ChallengeView struct {
	Challenge      DailyChallenge `json:"challenge"`
	Problem        Problem        `json:"problem"`
	Completed      bool           `json:"completed"`
	EarnedBonus    bool           `json:"earned_bonus"`
	TimeUntilReset int64          `json:"time_until_reset_ms"`
}
