package db

import (
	"fmt"
	"io"
	"time"

	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model owned by the scheduler.
func AllModels() []interface{} {
	return []interface{}{
		&models.Genre{},
		&models.ArtistProfile{},
		&models.ReviewerProfile{},
		&models.Track{},
		&models.Payment{},
		&models.Review{},
		&models.Lease{},
		&models.CreditTransaction{},
	}
}

// Migration is one versioned schema step. Each step runs exactly once.
type Migration struct {
	Version uint
	Name    string
	Up      func(tx *gorm.DB) error
}

// Migrations returns the ordered list of schema steps.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_tables", Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(AllModels()...)
		}},
		{Version: 2, Name: "backfill_review_active_keys", Up: backfillActiveKeys},
		{Version: 3, Name: "seed_genres", Up: func(tx *gorm.DB) error {
			return SeedGenres(tx, DefaultGenres())
		}},
	}
}

// Migrate applies every pending migration in version order and returns the
// number of steps applied.
func Migrate(db *gorm.DB, out io.Writer) (int, error) {
	if out == nil {
		out = io.Discard
	}
	if err := db.AutoMigrate(&models.SchemaMigration{}); err != nil {
		return 0, fmt.Errorf("db: migrate: schema_migrations: %w", err)
	}

	var applied []models.SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return 0, fmt.Errorf("db: migrate: list applied: %w", err)
	}
	done := make(map[uint]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	count := 0
	for _, m := range Migrations() {
		if done[m.Version] {
			continue
		}
		if err := m.Up(db); err != nil {
			return count, fmt.Errorf("db: migrate: v%d %s: %w", m.Version, m.Name, err)
		}
		rec := models.SchemaMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now()}
		if err := db.Create(&rec).Error; err != nil {
			return count, fmt.Errorf("db: migrate: record v%d: %w", m.Version, err)
		}
		fmt.Fprintf(out, "Applied migration v%d %s\n", m.Version, m.Name)
		count++
	}
	return count, nil
}

// backfillActiveKeys populates Review.ActiveKey for non-terminal rows written
// before the column existed.
func backfillActiveKeys(tx *gorm.DB) error {
	var reviews []models.Review
	if err := tx.Where("status IN ? AND active_key IS NULL", models.ActiveReviewStatuses).
		Find(&reviews).Error; err != nil {
		return err
	}
	for _, r := range reviews {
		if err := tx.Model(&models.Review{}).Where("id = ?", r.ID).
			Update("active_key", models.ActiveKey(r.TrackID, r.AssigneeKind, r.AssigneeID)).Error; err != nil {
			return err
		}
	}
	return nil
}

// DefaultGenres is the built-in genre catalog.
func DefaultGenres() []models.Genre {
	return []models.Genre{
		{Slug: "electronic", Name: "Electronic"},
		{Slug: "hip-hop", Name: "Hip-Hop"},
		{Slug: "pop", Name: "Pop"},
		{Slug: "rock", Name: "Rock"},
		{Slug: "rnb", Name: "R&B"},
		{Slug: "indie", Name: "Indie"},
		{Slug: "jazz", Name: "Jazz"},
		{Slug: "metal", Name: "Metal"},
		{Slug: "folk", Name: "Folk"},
		{Slug: "latin", Name: "Latin"},
	}
}

// SeedGenres upserts Genre rows by slug.
func SeedGenres(db *gorm.DB, genres []models.Genre) error {
	for _, g := range genres {
		genre := g
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&genre)
		if result.Error != nil {
			return fmt.Errorf("db: seed genre %q: %w", g.Slug, result.Error)
		}
	}
	return nil
}
