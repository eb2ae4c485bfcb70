package storage

import (
	"fmt"
	"time"
)

type UserProfile struct {
	UserID          int64     `json:"user_id" db:"user_id"`
	Username        string    `json:"username" db:"username"`
	FirstName       string    `json:"first_name" db:"first_name"`
	Age             int       `json:"age" db:"age"`
	Gender          string    `json:"gender" db:"gender"`
	Education       string    `json:"education" db:"education"`
	Interests       []string  `json:"interests" db:"interests"`
	Languages       []string  `json:"languages" db:"languages"`
	PreferredGender string    `json:"preferred_gender" db:"preferred_gender"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	LastActive      time.Time `json:"last_active" db:"last_active"`
	IsBanned        bool      `json:"is_banned" db:"is_banned"`
}

// NotificationHandle points at a previously delivered status message so the
// scheduler can edit it in place instead of sending a new one.
type NotificationHandle struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type QueueEntry struct {
	UserID     int64               `json:"user_id" db:"user_id"`
	EnqueuedAt time.Time           `json:"enqueued_at" db:"enqueued_at"`
	Handle     *NotificationHandle `json:"handle,omitempty"`
}

type Match struct {
	ID           string     `json:"id" db:"id"`
	Participants [2]int64   `json:"participants"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Genders
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// Gender preferences
const (
	PreferenceAny        = "Any"
	PreferenceMaleOnly   = "Male only"
	PreferenceFemaleOnly = "Female only"
)

// Education levels
var EducationLevels = []string{"High School", "Bachelor", "Master", "PhD", "Other"}

const (
	MinAge       = 13
	MaxAge       = 100
	MaxInterests = 10
	MaxLanguages = 5
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate rejects obviously malformed profiles before they reach the
// scoring and matching path.
func (u *UserProfile) Validate() error {
	if u.UserID <= 0 {
		return &ValidationError{Field: "user_id", Message: "user_id must be a positive integer"}
	}
	if u.FirstName == "" {
		return &ValidationError{Field: "first_name", Message: "first_name is required"}
	}
	if u.Age < MinAge || u.Age > MaxAge {
		return &ValidationError{Field: "age", Message: fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge)}
	}
	if u.Gender != GenderMale && u.Gender != GenderFemale {
		return &ValidationError{Field: "gender", Message: "gender must be Male or Female"}
	}
	if u.Education == "" {
		return &ValidationError{Field: "education", Message: "education is required"}
	}
	if len(u.Interests) < 1 || len(u.Interests) > MaxInterests {
		return &ValidationError{Field: "interests", Message: fmt.Sprintf("between 1 and %d interests are required", MaxInterests)}
	}
	if len(u.Languages) < 1 || len(u.Languages) > MaxLanguages {
		return &ValidationError{Field: "languages", Message: fmt.Sprintf("between 1 and %d languages are required", MaxLanguages)}
	}
	switch u.PreferredGender {
	case PreferenceAny, PreferenceMaleOnly, PreferenceFemaleOnly:
	default:
		return &ValidationError{Field: "preferred_gender", Message: "preferred_gender must be Any, Male only or Female only"}
	}
	return nil
}
