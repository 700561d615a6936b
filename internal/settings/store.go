package settings

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// Well-known keys read by the distribution engine.
const (
	KeyMaxMatchesPerCaso    = "max_matches_per_caso"
	KeyMinMatchScore        = "min_match_score"
	KeyMatchExpirationHours = "match_expiration_hours"
	KeyAutoExpireMatches    = "auto_expire_matches"
	KeyChatOnlyAfterAccept  = "chat_only_after_accept"
)

// Documented fallbacks when a key is missing or malformed.
const (
	DefaultMaxMatchesPerCaso    = 5
	DefaultMinMatchScore        = 60
	DefaultMatchExpirationHours = 48
	DefaultAutoExpireMatches    = true
	DefaultChatOnlyAfterAccept  = true
)

const cacheTTL = 30 * time.Second

type cachedValue struct {
	value    string
	ok       bool
	loadedAt time.Time
}

// Store reads typed system settings with a short-TTL in-process cache.
// Settings are written rarely (admin only), so a stale window of a few
// seconds is acceptable.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedValue
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		now:   time.Now,
		cache: make(map[string]cachedValue),
	}
}

func (s *Store) raw(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	if c, hit := s.cache[key]; hit && s.now().Sub(c.loadedAt) < cacheTTL {
		s.mu.RUnlock()
		return c.value, c.ok
	}
	s.mu.RUnlock()

	var setting models.SystemSetting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error

	c := cachedValue{loadedAt: s.now()}
	if err == nil {
		c.value, c.ok = setting.Value, true
	}

	s.mu.Lock()
	s.cache[key] = c
	s.mu.Unlock()

	return c.value, c.ok
}

// Invalidate drops a key from the cache (used after admin writes).
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

// GetString returns the setting value or def when missing.
func (s *Store) GetString(ctx context.Context, key, def string) string {
	if v, ok := s.raw(ctx, key); ok {
		return v
	}
	return def
}

// GetNumber returns the setting parsed as an int, or def when missing/invalid.
func (s *Store) GetNumber(ctx context.Context, key string, def int) int {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the setting parsed as a bool, or def when missing/invalid.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
