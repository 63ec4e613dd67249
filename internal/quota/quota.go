// Package quota gates pipeline entry per identity per calendar day.
//
// The counter row for one (identity, day) pair is the only shared mutable
// state in the request path, so the store contract requires the
// check-then-increment to be a single atomic operation.
package quota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snapsolve/snapsolve/pkg/models"
)

// DefaultUserLimit applies to authenticated users without an assigned tier.
const DefaultUserLimit = 5

// DefaultGuestLimit seeds the runtime-mutable anonymous daily limit.
const DefaultGuestLimit = 3

// SettingGuestDailyLimit is the settings key for the anonymous daily limit.
const SettingGuestDailyLimit = "guest_daily_limit"

// ErrNoIdentity is returned when a caller supplies neither a user id nor a
// client address. It maps to an authentication failure, not a quota
// rejection.
var ErrNoIdentity = errors.New("quota: no identity")

// Identity is the unit of quota accounting: an authenticated user or an
// anonymized guest.
type Identity struct {
	// UserID is set for authenticated callers.
	UserID string

	// TierLimit is the daily limit from the user's subscription tier. Only
	// meaningful when TierAssigned is true; zero means unlimited.
	TierLimit int

	// TierAssigned reports whether the user has a tier at all. Users without
	// one get DefaultUserLimit.
	TierAssigned bool

	// RemoteAddr is the client address for anonymous callers. It is hashed
	// before use; the raw address never reaches the store.
	RemoteAddr string
}

// UserIdentity builds an authenticated identity.
func UserIdentity(userID string, tierLimit int, tierAssigned bool) Identity {
	return Identity{UserID: userID, TierLimit: tierLimit, TierAssigned: tierAssigned}
}

// GuestIdentity builds an anonymous identity from a client address.
func GuestIdentity(remoteAddr string) Identity {
	return Identity{RemoteAddr: remoteAddr}
}

// key returns the store key. Guest addresses are one-way hashed.
func (id Identity) key() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	sum := sha256.Sum256([]byte(id.RemoteAddr))
	return "guest:" + hex.EncodeToString(sum[:])
}

// ExceededError is the structured admission rejection. It is distinguishable
// from authentication failures and from pipeline errors so the edge can map
// it to its own status.
type ExceededError struct {
	Limit   int       `json:"limit"`
	Used    int       `json:"used"`
	ResetAt time.Time `json:"reset_at"`
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota: daily limit of %d reached (used %d, resets %s)",
		e.Limit, e.Used, e.ResetAt.Format(time.RFC3339))
}

// IsExceeded reports whether err is a quota rejection.
func IsExceeded(err error) bool {
	var exceeded *ExceededError
	return errors.As(err, &exceeded)
}

// Store persists daily usage counters.
type Store interface {
	// IncrementIfUnder increments the counter for (key, day) if its current
	// value is below limit, atomically with the check. A limit of zero means
	// no bound: the increment always applies. It returns the counter value
	// after the operation and whether the increment was applied.
	IncrementIfUnder(ctx context.Context, key, day string, limit int) (used int, incremented bool, err error)

	// Count returns the counter for (key, day) without mutating it.
	Count(ctx context.Context, key, day string) (int, error)
}

// Settings reads and writes runtime-mutable configuration values.
type Settings interface {
	GetInt(ctx context.Context, key string, fallback int) (int, error)
	SetInt(ctx context.Context, key string, value int) error
}

// Controller is the quota admission controller.
type Controller struct {
	store    Store
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewController creates a Controller. settings may be nil, in which case the
// anonymous limit is fixed at DefaultGuestLimit.
func NewController(store Store, settings Settings, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:    store,
		settings: settings,
		logger:   logger.With("component", "quota"),
		now:      time.Now,
	}
}

// Admit records one usage slot for the identity today, failing with
// *ExceededError when the daily limit is already reached. A limit of zero
// means unlimited: usage is still recorded but admission never fails and
// Remaining reports models.UnlimitedRemaining.
func (c *Controller) Admit(ctx context.Context, id Identity) (models.QuotaInfo, error) {
	limit, day, resetAt, err := c.resolve(ctx, id)
	if err != nil {
		return models.QuotaInfo{}, err
	}

	used, incremented, err := c.store.IncrementIfUnder(ctx, id.key(), day, limit)
	if err != nil {
		return models.QuotaInfo{}, fmt.Errorf("quota: admission check: %w", err)
	}

	if limit > 0 && !incremented {
		c.logger.Info("admission rejected", "limit", limit, "used", used)
		return models.QuotaInfo{}, &ExceededError{Limit: limit, Used: used, ResetAt: resetAt}
	}

	return quotaInfo(limit, used, resetAt), nil
}

// Status reports current usage without consuming a slot. It never rejects.
func (c *Controller) Status(ctx context.Context, id Identity) (models.QuotaInfo, error) {
	limit, day, resetAt, err := c.resolve(ctx, id)
	if err != nil {
		return models.QuotaInfo{}, err
	}

	used, err := c.store.Count(ctx, id.key(), day)
	if err != nil {
		return models.QuotaInfo{}, fmt.Errorf("quota: status read: %w", err)
	}

	return quotaInfo(limit, used, resetAt), nil
}

func (c *Controller) resolve(ctx context.Context, id Identity) (limit int, day string, resetAt time.Time, err error) {
	now := c.now().UTC()
	day = now.Format("2006-01-02")
	resetAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour)

	switch {
	case id.UserID != "":
		limit = DefaultUserLimit
		if id.TierAssigned {
			limit = id.TierLimit
		}
	case id.RemoteAddr != "":
		limit = DefaultGuestLimit
		if c.settings != nil {
			limit, err = c.settings.GetInt(ctx, SettingGuestDailyLimit, DefaultGuestLimit)
			if err != nil {
				return 0, "", time.Time{}, fmt.Errorf("quota: read guest limit: %w", err)
			}
		}
	default:
		return 0, "", time.Time{}, ErrNoIdentity
	}
	return limit, day, resetAt, nil
}

func quotaInfo(limit, used int, resetAt time.Time) models.QuotaInfo {
	remaining := models.UnlimitedRemaining
	if limit > 0 {
		remaining = limit - used
		if remaining < 0 {
			remaining = 0
		}
	}
	return models.QuotaInfo{Limit: limit, Used: used, Remaining: remaining, ResetAt: resetAt}
}
