package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound        = errors.New("user has no leaderboard entry")
	ErrProblemNotFound     = errors.New("problem not found")
	ErrChallengeNotFound   = errors.New("daily challenge not found")
	ErrChallengeExists     = errors.New("daily challenge already exists for date")
	ErrNoPublishedProblems = errors.New("no published problems available")
	ErrProblemNotPublished = errors.New("problem is not published")
	ErrInvalidPeriod       = errors.New("invalid leaderboard period")
	ErrInvalidPage         = errors.New("invalid page parameters")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProblemNotFound) ||
		errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrNoPublishedProblems)
}
