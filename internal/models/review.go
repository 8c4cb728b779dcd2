package models

import "time"

// Review is one assignment of one candidate to one track.
//
// ActiveKey is "<track>|<assignee key>" while the review is ASSIGNED or
// IN_PROGRESS and NULL once it is terminal. Its unique index is what rejects
// a second concurrent assignment of the same candidate to the same track.
type Review struct {
	ID             string  `gorm:"primaryKey;size:36"`
	TrackID        string  `gorm:"size:36;not null;index"`
	AssigneeKind   string  `gorm:"size:16;not null"`
	AssigneeID     string  `gorm:"size:36;not null;index"`
	ActiveKey      *string `gorm:"size:96;uniqueIndex"`
	Status         string  `gorm:"size:16;not null;default:ASSIGNED;index"`
	ListenDuration int     `gorm:"not null;default:0"`
	LastHeartbeat  *time.Time
	PaidAmount     int `gorm:"not null;default:0"`

	FirstImpression string `gorm:"size:32"`
	Score           int
	BestPart        string `gorm:"type:text"`
	WeakestPart     string `gorm:"type:text"`
	Notes           string `gorm:"type:text"`
	ArtistRating    *int

	SkippedAt   *time.Time `gorm:"index"`
	CompletedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Lease is the queue entry reserving a track for a candidate until ExpiresAt.
// A lease always has a paired ASSIGNED or IN_PROGRESS Review.
type Lease struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	TrackID       string    `gorm:"size:36;not null;uniqueIndex:idx_lease_track_candidate"`
	CandidateKey  string    `gorm:"size:56;not null;uniqueIndex:idx_lease_track_candidate"`
	CandidateKind string    `gorm:"size:16;not null"`
	CandidateID   string    `gorm:"size:36;not null;index"`
	ReviewID      string    `gorm:"size:36;not null;index"`
	Priority      int       `gorm:"not null;default:0"`
	AssignedAt    time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null;index"`
}
