package model

import (
	"strings"
	"time"
)

type Difficulty string
type SubmissionStatus string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"

	StatusAccepted SubmissionStatus = "accepted"
	StatusWrong    SubmissionStatus = "wrong"

	DefaultTopic     = "General"
	DefaultTimeTaken = "00:00"
)

// Submission is append-only: no update or delete paths exist.
type Submission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	ProblemName string           `json:"problemName"`
	Difficulty  Difficulty       `json:"difficulty"`
	Status      SubmissionStatus `json:"status"`
	Topic       string           `json:"topic"`
	TimeTaken   string           `json:"timeTaken"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// ParseDifficulty falls back to easy for anything unrecognised.
func ParseDifficulty(raw string) Difficulty {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(raw))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	default:
		return DifficultyEasy
	}
}

// ParseStatus treats any verdict mentioning "accept" or "correct" as accepted
// ("Accepted", "correct answer"); everything else is wrong.
func ParseStatus(raw string) SubmissionStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(s, "accept") || strings.Contains(s, "correct") {
		return StatusAccepted
	}
	return StatusWrong
}

type WeakTopic struct {
	Topic      string `json:"topic"`
	WrongCount int    `json:"wrongCount"`
}
