package models

import "time"

// Employee is one row of the internal employee directory. Statement lines
// reference employees only by the free-text Vermittler name, so FirstName
// and LastName are kept separately to help the name matcher.
type Employee struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
