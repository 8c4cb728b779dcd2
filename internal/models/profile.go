package models

import "time"

// ReviewerProfile is a dedicated reviewer.
type ReviewerProfile struct {
	ID                   string  `gorm:"primaryKey;size:36"`
	UserID               string  `gorm:"size:64;uniqueIndex;not null"`
	DisplayName          string  `gorm:"size:128"`
	Tier                 string  `gorm:"size:16;not null;default:ROOKIE;index"`
	TotalReviews         int     `gorm:"not null;default:0"`
	AverageRating        float64 `gorm:"not null;default:0"`
	IsRestricted         bool    `gorm:"not null;default:false"`
	CompletedOnboarding  bool    `gorm:"not null;default:false"`
	OnboardingQuizPassed bool    `gorm:"not null;default:false"`
	AnyGenre             bool    `gorm:"not null;default:false"`
	PendingBalance       int     `gorm:"not null;default:0"`
	TotalEarnings        int     `gorm:"not null;default:0"`
	LastReviewDate       *time.Time
	LastAssignedAt       *time.Time
	AccountCreatedAt     time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Genres []Genre `gorm:"many2many:reviewer_genres"`
}

// ArtistProfile is a submitter. For PEER packages it is also the candidate
// that reviews other submitters' tracks.
type ArtistProfile struct {
	ID                  string `gorm:"primaryKey;size:36"`
	UserID              string `gorm:"size:64;uniqueIndex;not null"`
	DisplayName         string `gorm:"size:128"`
	Email               string `gorm:"size:256"`
	IsRestricted        bool   `gorm:"not null;default:false"`
	CompletedOnboarding bool   `gorm:"not null;default:false"`
	AnyGenre            bool   `gorm:"not null;default:false"`
	ReviewCredits       int    `gorm:"not null;default:0"`
	TotalCreditsSpent   int    `gorm:"not null;default:0"`
	TotalSpent          int    `gorm:"not null;default:0"`
	TotalTracks         int    `gorm:"not null;default:0"`
	TotalPeerReviews    int    `gorm:"not null;default:0"`
	PeerRating          float64
	LastAssignedAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Genres []Genre `gorm:"many2many:artist_genres"`
}

// CreditTransaction is an audit row written alongside every credit mutation.
type CreditTransaction struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ArtistID  string `gorm:"size:36;not null;index"`
	TrackID   string `gorm:"size:36;index"`
	Type      string `gorm:"size:16;not null"` // PURCHASE, SPEND, REFUND, EARN
	Amount    int    `gorm:"not null"`
	Balance   int    `gorm:"not null"`
	CreatedAt time.Time
}
