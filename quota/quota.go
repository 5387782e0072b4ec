// Package quota tracks daily remote-API quota usage in Redis so the clip
// fetcher can stop before exhausting the platform's budget. Keys roll over per
// UTC day and expire on their own.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "clip-tender:youtube:quota"

// Ledger is a daily usage counter with a fixed budget.
type Ledger struct {
	rdb    *redis.Client
	budget int64
}

// New builds a ledger with the given daily unit budget.
func New(rdb *redis.Client, dailyBudget int) *Ledger {
	return &Ledger{rdb: rdb, budget: int64(dailyBudget)}
}

func dayKey(now time.Time) string {
	return fmt.Sprintf("%s:%s", keyPrefix, now.UTC().Format("2006-01-02"))
}

// Spend debits units from today's budget and returns the total used so far.
func (l *Ledger) Spend(ctx context.Context, units int) (int64, error) {
	key := dayKey(time.Now())
	used, err := l.rdb.IncrBy(ctx, key, int64(units)).Result()
	if err != nil {
		return 0, fmt.Errorf("quota spend: %w", err)
	}
	// 48h covers the day plus clock skew; the key is dead weight after that.
	l.rdb.Expire(ctx, key, 48*time.Hour)
	return used, nil
}

// Used returns today's consumed units.
func (l *Ledger) Used(ctx context.Context) (int64, error) {
	used, err := l.rdb.Get(ctx, dayKey(time.Now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota used: %w", err)
	}
	return used, nil
}

// Remaining returns today's remaining units, never negative.
func (l *Ledger) Remaining(ctx context.Context) (int64, error) {
	used, err := l.Used(ctx)
	if err != nil {
		return 0, err
	}
	if used >= l.budget {
		return 0, nil
	}
	return l.budget - used, nil
}

// Exceeded reports whether the daily budget is spent.
func (l *Ledger) Exceeded(ctx context.Context) (bool, error) {
	rem, err := l.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return rem == 0, nil
}
