package models

import "time"

// Track is a unit of work submitted for feedback.
type Track struct {
	ID               string  `gorm:"primaryKey;size:36"`
	ArtistID         string  `gorm:"size:36;not null;index"`
	Title            string  `gorm:"size:256;not null"`
	PackageType      string  `gorm:"size:24;not null;default:PEER"`
	Status           string  `gorm:"size:24;not null;default:UPLOADED;index"`
	ReviewsRequested int     `gorm:"not null;default:0"`
	ReviewsCompleted int     `gorm:"not null;default:0"`
	CreditsSpent     int     `gorm:"not null;default:0"`
	PaidAt           *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Artist  ArtistProfile `gorm:"foreignKey:ArtistID;constraint:OnDelete:CASCADE"`
	Genres  []Genre       `gorm:"many2many:track_genres;constraint:OnDelete:CASCADE"`
	Reviews []Review      `gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
	Leases  []Lease       `gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
	Payment *Payment      `gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
}

// Genre is a catalog entry shared by tracks and profiles.
type Genre struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	Slug string `gorm:"size:64;uniqueIndex;not null"`
	Name string `gorm:"size:128;not null"`
}

// Payment records the PaymentCompleted fact for a track. One per track.
type Payment struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	TrackID     string `gorm:"size:36;uniqueIndex;not null"`
	AmountCents int    `gorm:"not null"`
	Status      string `gorm:"size:16;not null;default:COMPLETED"`
	CompletedAt time.Time
	CreatedAt   time.Time
}
