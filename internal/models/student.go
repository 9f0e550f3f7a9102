package models

import "time"

// Student is the minimal read-only projection this service ships inside
// offline packages. The roster itself is owned by the registration system.
type Student struct {
	ID             string    `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Email          string    `db:"email" json:"email"`
	RegistrationNo string    `db:"registration_no" json:"registration_no"`
	AvatarURL      *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
