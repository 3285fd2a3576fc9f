package domain

import "time"

// AssessmentResult is a submitted test attempt. Answers maps question id to
// the chosen option text.
type AssessmentResult struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	TestID      string            `json:"test_id"`
	CareerID    string            `json:"career_id"`
	Score       float64           `json:"score"`
	Answers     map[string]string `json:"answers"`
	CompletedAt time.Time         `json:"completed_at"`
}

// CareerPreference ranks the two assessed careers by score.
type CareerPreference struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	PrimaryCareerID   string    `json:"primary_career"`
	SecondaryCareerID string    `json:"secondary_career"`
	PrimaryScore      float64   `json:"primary_score"`
	SecondaryScore    float64   `json:"secondary_score"`
	CreatedAt         time.Time `json:"created_at"`
}

// CompletedResource marks a learning resource as finished by a user.
type CompletedResource struct {
	UserID      string    `json:"user_id"`
	ResourceID  string    `json:"resource_id"`
	CompletedAt time.Time `json:"completed_at"`
}
