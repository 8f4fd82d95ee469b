package services

import (
	"context"
	"sync"
	"time"

	"tripmind_go_backend/internal/models"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultRateLimitMax    = 30
	DefaultRateLimitWindow = time.Minute
)

// RateLimiter is a fixed-window counter keyed by client identity.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryRateLimiter keeps counters in process. Counters reset on restart
// and are not shared between replicas.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	counters *cache.Cache
	limit    int
	window   time.Duration
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	limit, window = normalizeLimits(limit, window)
	return &MemoryRateLimiter{
		counters: cache.New(window, 2*window),
		limit:    limit,
		window:   window,
	}
}

func (l *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add only succeeds for a new or expired window.
	if err := l.counters.Add(key, 1, l.window); err == nil {
		return true, nil
	}
	n, err := l.counters.IncrementInt(key, 1)
	if err != nil {
		// Window expired between Add and IncrementInt.
		l.counters.Set(key, 1, l.window)
		return true, nil
	}
	return n <= l.limit, nil
}

// DBRateLimiter shares counters through the database so every replica
// sees the same window.
type DBRateLimiter struct {
	db     *gorm.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewDBRateLimiter(db *gorm.DB, limit int, window time.Duration) *DBRateLimiter {
	limit, window = normalizeLimits(limit, window)
	return &DBRateLimiter{db: db, limit: limit, window: window, now: time.Now}
}

func (l *DBRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	var allowed bool
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		seed := models.RateLimitCounter{Key: key, WindowStart: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var counter models.RateLimitCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("bucket_key = ?", key).
			First(&counter).Error; err != nil {
			return err
		}

		if now.Sub(counter.WindowStart) >= l.window {
			counter.Count = 0
			counter.WindowStart = now
		}
		counter.Count++
		allowed = counter.Count <= l.limit

		return tx.Model(&models.RateLimitCounter{}).
			Where("bucket_key = ?", key).
			Updates(map[string]interface{}{
				"count":        counter.Count,
				"window_start": counter.WindowStart,
			}).Error
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func normalizeLimits(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return limit, window
}
