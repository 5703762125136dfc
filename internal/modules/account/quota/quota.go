// Package quota counts accepted requests per user per calendar day and
// refuses requests past the daily limit.
package quota

import (
	"context"
	"errors"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
)

// ErrStore wraps every failure of the backing store. The request must fail:
// the quota cannot be assumed when the store is unavailable.
var ErrStore = errors.New("quota store failure")

// Result is the outcome of a quota check.
type Result struct {
	Allowed   bool   `json:"allowed"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	DateKey   string `json:"dateKey"`
}

// Ledger atomically checks and increments daily usage.
type Ledger interface {
	// CheckAndIncrement increments the user's count for today by exactly one
	// if the limit allows it. A denied call leaves the count untouched.
	CheckAndIncrement(ctx context.Context, userID string, dailyLimit int) (Result, error)
	// Status reports today's usage without mutating it.
	Status(ctx context.Context, userID string, dailyLimit int) (Result, error)
}

func unlimited(limit int) bool { return limit == tier.Unlimited }

func allowed(used, limit int, dateKey string) Result {
	if unlimited(limit) {
		return Result{Allowed: true, Used: used, Limit: tier.Unlimited, Remaining: tier.Unlimited, DateKey: dateKey}
	}
	return Result{Allowed: true, Used: used, Limit: limit, Remaining: max(limit-used, 0), DateKey: dateKey}
}

func denied(used, limit int, dateKey string) Result {
	return Result{Allowed: false, Used: used, Limit: limit, Remaining: 0, DateKey: dateKey}
}

func status(used, limit int, dateKey string) Result {
	if unlimited(limit) || used < limit {
		return allowed(used, limit, dateKey)
	}
	return denied(used, limit, dateKey)
}
