package model

import "time"

// PracticeSession is reported by the editor extension after each completed run.
type PracticeSession struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Question       string    `json:"question"`
	Language       string    `json:"language"`
	TimeTaken      string    `json:"timeTaken"` // "MM:SS"
	HintsUsed      int       `json:"hintsUsed"`
	SolutionViewed bool      `json:"solutionViewed"`
	Date           time.Time `json:"date"`
	CreatedAt      time.Time `json:"createdAt"`
}
