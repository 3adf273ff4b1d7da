package student

import (
	"context"
	"errors"
	"time"
)

// DefaultTotalLessons is assumed for students whose profile does not carry a
// lesson count yet (the lesson plan predates the count being recorded).
const DefaultTotalLessons = 20

var ErrNotFound = errors.New("student profile not found")

type (
	// Profile holds the internship-program details of a student account.
	Profile struct {
		ID           int       `json:"id" db:"id"`
		UserID       int       `json:"user_id" db:"user_id"`
		Name         string    `json:"name" db:"name"`
		Field        string    `json:"field" db:"field"`
		TotalLessons int       `json:"total_lessons" db:"total_lessons"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"`
		UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	}

	Repository interface {
		CreateProfile(ctx context.Context, prof Profile) (Profile, error)
		GetProfileByUserID(ctx context.Context, userID int) (Profile, error)
		// QueryProfilesByUserID returns the profiles of the given users; users
		// without a profile are simply absent from the result, not an error.
		QueryProfilesByUserID(ctx context.Context, userIDs ...int) ([]Profile, error)
	}
)

// Lessons returns the profile's lesson count, defaulting when unset.
func (p Profile) Lessons() int {
	if p.TotalLessons <= 0 {
		return DefaultTotalLessons
	}
	return p.TotalLessons
}
