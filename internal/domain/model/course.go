package model

import "time"

// Course is a purchasable catalog entry. Authoring (modules/lessons CRUD)
// happens outside this service; we only read what checkout and the
// entitlement path need.
type Course struct {
	ID        string
	Title     string
	Price     int64 // minor currency units
	CreatedAt time.Time
}

// Lesson carries just enough for the access check: free-preview lessons are
// watchable with no enrollment at all.
type Lesson struct {
	ID          string
	CourseID    string
	Title       string
	FreePreview bool
}
