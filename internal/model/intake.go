// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// FoodItem is one food the inference service recognised in a description.
//
// WHY ARE THE NUMBERS STRINGS?
// The model chooses its own formatting ("250", "12.5"), and we keep it exactly
// as written. Two entries are duplicates only when their strings match, so
// converting to float64 on the way in would change dedup behaviour.
type FoodItem struct {
	Name     string `json:"name"`
	Calories string `json:"calories"`
	Protein  string `json:"protein"`
	Carbs    string `json:"carbs"`
	Fat      string `json:"fat"`
	Amount   string `json:"amount"`
	MealType string `json:"mealType,omitempty"`
}

// Identity is the tuple used for duplicate suppression. MealType is derived
// data and deliberately left out.
type Identity struct {
	Name, Amount, Calories, Protein, Carbs, Fat string
}

// Identity returns the dedup key of the food.
func (f FoodItem) Identity() Identity {
	return Identity{
		Name:     f.Name,
		Amount:   f.Amount,
		Calories: f.Calories,
		Protein:  f.Protein,
		Carbs:    f.Carbs,
		Fat:      f.Fat,
	}
}

// Summary holds per-field totals. It is always computed from a food list,
// never authored independently.
type Summary struct {
	Calories string `json:"calories"`
	Protein  string `json:"protein"`
	Carbs    string `json:"carbs"`
	Fat      string `json:"fat"`
}

// DailyRecord is everything eaten under one date-key.
type DailyRecord struct {
	Foods   []FoodItem `json:"foods"`
	Summary Summary    `json:"summary"`
}

// Ledger maps an ISO-8601 date-key to that day's record. One Ledger per user
// is stored as a single JSON blob under the user's name.
//
// A Fragment is a Ledger holding the date-key(s) produced by one inference
// call. Same shape, same type.
type Ledger map[string]DailyRecord

// Fragment is an alias that documents intent at call sites.
type Fragment = Ledger

// DatedRecord is a DailyRecord flattened with its key, used by list views.
type DatedRecord struct {
	Date    string     `json:"date"`
	Foods   []FoodItem `json:"foods"`
	Summary Summary    `json:"summary"`
}

// OverallSummary is the total and per-day average of a month.
type OverallSummary struct {
	Total   Summary `json:"total"`
	Average Summary `json:"average"`
}

// MonthlySummary is the wire shape of GET /api/users/{user}/summary.
type MonthlySummary struct {
	Month          string         `json:"month"` // YYYY-MM
	DailyIntakes   []DatedRecord  `json:"dailyIntakes"`
	OverallSummary OverallSummary `json:"overallSummary"`
}
