package model

import "time"

// Enrollment grants one user access to one course. The expiry field encodes
// provenance: nil means permanent access backed by a completed purchase;
// a timestamp means access tied to the current subscription period.
type Enrollment struct {
	UserID    string
	CourseID  string
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Grants reports whether the enrollment grants access at the given instant.
func (e *Enrollment) Grants(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// Permanent reports purchase provenance.
func (e *Enrollment) Permanent() bool { return e.ExpiresAt == nil }
