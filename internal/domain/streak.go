package domain

import "time"

// CurrentStreak counts the consecutive UTC calendar days, ending today, on
// which at least one solve happened. A user who has not solved anything yet
// today is still on their streak if they solved yesterday; the count then
// anchors on yesterday. A full day without a solve breaks the streak.
//
// Pure function of the solve timestamps; multiple solves on one day count
// once.
func CurrentStreak(now time.Time, solveTimes []time.Time) int {
	if len(solveTimes) == 0 {
		return 0
	}

	days := make(map[time.Time]struct{}, len(solveTimes))
	for _, t := range solveTimes {
		days[DayOf(t)] = struct{}{}
	}

	anchor := DayOf(now)
	if _, ok := days[anchor]; !ok {
		// No solve yet today; the streak survives until midnight.
		anchor = anchor.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := days[anchor]; !ok {
			return streak
		}
		streak++
		anchor = anchor.AddDate(0, 0, -1)
	}
}
