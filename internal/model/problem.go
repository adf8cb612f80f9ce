package model

// Difficulty levels shown in the problem list.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// Problem is the list-page metadata of a problem, as stored in the problems
// table. The statement, starter code and checker live in the embedded
// catalog (see package problem); link-only problems have only this row.
type Problem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Order      int    `json:"order"`
	VideoID    string `json:"videoId,omitempty"`
	Link       string `json:"link,omitempty"`
}
