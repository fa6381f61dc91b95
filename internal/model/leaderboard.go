package model

// LeaderboardEntry is one user's calorie total for a month.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	User          string `json:"user"`
	TotalCalories string `json:"totalCalories"`
	Days          int    `json:"days"`
}

// Leaderboard ranks users by calories eaten in a UTC month, highest first.
type Leaderboard struct {
	Month   string             `json:"month"`
	Entries []LeaderboardEntry `json:"entries"`
}
