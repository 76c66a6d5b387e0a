package domain

import "time"

// Domain entities. Do not depend on Gin, Postgres, Redis or Cloudinary.

// Todo is a named list owned by one user, containing ordered tasks.
// UserSequentialID is the per-owner display number: unique per user,
// assigned max-plus-one at creation, never reused after deletion.
type Todo struct {
	ID               int64
	UserID           int64
	UserSequentialID int
	Title            string
	Icon             string
	Completed        bool
	ImageURL         *string
	ImagePublicID    *string

	Tasks []Task

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task is an individual checklist item within a Todo. Order is a display
// position (>= 0, not required unique).
type Task struct {
	ID        int64
	TodoID    int64
	Text      string
	Completed bool
	Order     int

	CreatedAt time.Time
	UpdatedAt time.Time
}
