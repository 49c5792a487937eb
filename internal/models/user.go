package models

import "time"

// User is the session identity returned by the user-info endpoint.
type User struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	IsStaff    bool       `json:"is_staff"`
	DateJoined time.Time  `json:"date_joined"`
	LastLogin  *time.Time `json:"last_login"` // nil if user never logged in before
}

// Profile is the extended record from the user-profile endpoint.
type Profile struct {
	User      User   `json:"user"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"language"`
	Country   string `json:"country"`
}
