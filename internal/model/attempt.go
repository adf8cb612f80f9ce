package model

import "time"

// Attempt is a user's latest code for one problem. There is at most one
// attempt per (user, problem) pair; saving again overwrites the code.
//
// Correct records whether any submission of this attempt passed the checker.
type Attempt struct {
	UserID    string    `json:"userId"`
	ProblemID string    `json:"problemId"`
	Code      string    `json:"code"`
	Correct   bool      `json:"correct"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Problem is filled by listings that join the problems table.
	Problem *Problem `json:"problem,omitempty"`
}
