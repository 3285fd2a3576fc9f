// Package domain contains core domain types for the Skill Worlds application.
package domain

import (
	"time"
)

// User represents an account that can sign in.
type User struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile holds the personal details collected at registration.
type Profile struct {
	UserID            string    `json:"user_id"`
	FullName          string    `json:"full_name"`
	Age               int       `json:"age"`
	EducationLevel    string    `json:"education_level"`
	CurrentlyStudying string    `json:"currently_studying"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FirstName returns the first word of the full name, or the full name if it
// has a single word.
func (p *Profile) FirstName() string {
	for i, r := range p.FullName {
		if r == ' ' {
			return p.FullName[:i]
		}
	}
	return p.FullName
}
