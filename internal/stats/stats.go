// Package stats computes the platform statistics shown on landing pages and
// caches them for a short TTL. The figures are not authoritative and may be
// stale by up to the TTL.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

const (
	// DefaultTTL is how long computed stats are served from cache.
	DefaultTTL = 15 * time.Minute
	// ActiveWindow is how recently a reviewer must have reviewed to count as
	// an active listener.
	ActiveWindow = 30 * 24 * time.Hour
	// TopGenreCount is the number of genres reported in TopGenres.
	TopGenreCount = 5

	cacheKey         = "soundcheck:stats:platform"
	avgResponseLabel = "< 24 hours"
)

// Platform is the aggregate read model.
type Platform struct {
	ActiveListeners       int64     `json:"activeListeners"`
	TotalReviewsCompleted int64     `json:"totalReviewsCompleted"`
	TotalTracksReviewed   int64     `json:"totalTracksReviewed"`
	AvgResponseTime       string    `json:"avgResponseTime"`
	TopGenres             []string  `json:"topGenres"`
	ComputedAt            time.Time `json:"computedAt"`
}

// Compute queries the database for fresh statistics.
func Compute(ctx context.Context, gdb *gorm.DB, now time.Time) (*Platform, error) {
	gdb = gdb.WithContext(ctx)
	now = now.UTC()
	p := &Platform{AvgResponseTime: avgResponseLabel, ComputedAt: now, TopGenres: []string{}}

	if err := gdb.Model(&models.ReviewerProfile{}).
		Where("last_review_date >= ? AND is_restricted = ?", now.Add(-ActiveWindow), false).
		Count(&p.ActiveListeners).Error; err != nil {
		return nil, fmt.Errorf("stats: count active listeners: %w", err)
	}
	if err := gdb.Model(&models.Review{}).Where("status = ?", models.ReviewCompleted).
		Count(&p.TotalReviewsCompleted).Error; err != nil {
		return nil, fmt.Errorf("stats: count completed reviews: %w", err)
	}
	if err := gdb.Model(&models.Track{}).Where("status = ?", models.TrackCompleted).
		Count(&p.TotalTracksReviewed).Error; err != nil {
		return nil, fmt.Errorf("stats: count reviewed tracks: %w", err)
	}

	var rows []struct {
		Name  string
		Total int64
	}
	if err := gdb.Table("genres").
		Select("genres.name AS name, COUNT(track_genres.track_id) AS total").
		Joins("JOIN track_genres ON track_genres.genre_id = genres.id").
		Group("genres.id, genres.name").
		Order("total DESC, genres.name ASC").
		Limit(TopGenreCount).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("stats: top genres: %w", err)
	}
	for _, r := range rows {
		p.TopGenres = append(p.TopGenres, r.Name)
	}
	return p, nil
}

// Reader serves Platform stats through a Cache.
type Reader struct {
	DB    *gorm.DB
	Cache Cache
	TTL   time.Duration
	Now   func() time.Time
}

// Get returns cached stats when fresh, otherwise computes and caches them.
// Cache failures are logged and fall through to the database.
func (r *Reader) Get(ctx context.Context) (*Platform, error) {
	if r.Cache != nil {
		data, ok, err := r.Cache.Get(ctx, cacheKey)
		if err != nil {
			log.Printf("stats: cache get: %v", err)
		}
		if ok {
			var p Platform
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
			log.Printf("stats: discarding unreadable cache entry")
		}
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	p, err := Compute(ctx, r.DB, now)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		ttl := r.TTL
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("stats: encode: %w", err)
		}
		if err := r.Cache.Set(ctx, cacheKey, data, ttl); err != nil {
			log.Printf("stats: cache set: %v", err)
		}
	}
	return p, nil
}

// Invalidate drops the cached stats.
func (r *Reader) Invalidate(ctx context.Context) error {
	if r.Cache == nil {
		return nil
	}
	return r.Cache.Delete(ctx, cacheKey)
}
