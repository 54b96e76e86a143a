// Package feepolicy resolves the platform fee percentage and computes
// buyer-facing and host-facing amounts. The fee model is additive: the
// buyer pays base + fee, the host always receives the full base price and
// the platform receives the fee. Amount computation is a pure function of
// its inputs; the percentage is read through a single accessor backed by
// a Redis cache that is invalidated explicitly on admin update, never by
// guessing. Callers capture the percentage once per computation and must
// not consult the policy again after an order's financial snapshot has
// been frozen.
package feepolicy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatherly/event-payments/internal/model"
)

// MaxBps is the upper bound of the fee percentage (100%) in basis points.
const MaxBps = 10_000

// cacheKey is the Redis key holding the current fee in basis points.
const cacheKey = "feepolicy:current_bps"

// cacheTTL bounds staleness if an invalidation is ever lost. Explicit
// invalidation on write remains the primary mechanism.
const cacheTTL = time.Hour

// ErrInvalidPercent is returned when a configured percentage falls
// outside the inclusive 0..100% range.
var ErrInvalidPercent = errors.New("fee percentage out of range")

// ConfigSource supplies the current fee configuration from the backing
// store. Implementations return sql.ErrNoRows when no config exists yet.
type ConfigSource interface {
	CurrentFeeConfig(ctx context.Context) (*model.FeeConfig, error)
}

// Amounts is the result of one fee computation. All values are integer
// cents; FeeAmountCents is rounded half-up on the order total, so
// TotalAmountCents = BasePriceCents*Seats + FeeAmountCents.
// FinalPricePerSeatCents is a display value rounded per seat.
type Amounts struct {
	BasePriceCents         int64  `json:"base_price_cents"`
	Seats                  uint32 `json:"seats"`
	FeeBps                 uint32 `json:"fee_bps"`
	FinalPricePerSeatCents int64  `json:"final_price_per_seat_cents"`
	FeeAmountCents         int64  `json:"fee_amount_cents"`
	HostEarningCents       int64  `json:"host_earning_cents"`
	TotalAmountCents       int64  `json:"total_amount_cents"`
}

// ComputeAmounts applies the additive fee model for the given base price
// per seat, seat count and fee percentage in basis points. It is pure:
// given the same inputs it always returns the same result, so a caller
// that captured the percentage at snapshot time can reproduce the
// snapshot regardless of later policy changes.
func ComputeAmounts(basePriceCents int64, seats uint32, feeBps uint32) Amounts {
	base := basePriceCents * int64(seats)
	fee := roundHalfUp(base*int64(feeBps), MaxBps)
	return Amounts{
		BasePriceCents:         basePriceCents,
		Seats:                  seats,
		FeeBps:                 feeBps,
		FinalPricePerSeatCents: basePriceCents + roundHalfUp(basePriceCents*int64(feeBps), MaxBps),
		FeeAmountCents:         fee,
		HostEarningCents:       base,
		TotalAmountCents:       base + fee,
	}
}

// roundHalfUp divides n by d rounding half away from zero for the
// non-negative amounts used here.
func roundHalfUp(n, d int64) int64 {
	return (n + d/2) / d
}

// Policy reads the fee percentage through the cache-then-store path.
// A nil Redis client disables caching and every read hits the store.
type Policy struct {
	source     ConfigSource
	cache      *redis.Client
	defaultBps uint32
}

// New constructs a Policy. defaultBps is used when the backing store has
// no configuration rows yet (fresh deployment).
func New(source ConfigSource, cache *redis.Client, defaultBps uint32) *Policy {
	return &Policy{source: source, cache: cache, defaultBps: defaultBps}
}

// PercentageBps returns the current platform fee in basis points. The
// Redis cache is consulted first; on a miss the store is read and the
// cache repopulated. Cache failures degrade to store reads.
func (p *Policy) PercentageBps(ctx context.Context) (uint32, error) {
	if p.cache != nil {
		if v, err := p.cache.Get(ctx, cacheKey).Result(); err == nil {
			if bps, convErr := strconv.ParseUint(v, 10, 32); convErr == nil && bps <= MaxBps {
				return uint32(bps), nil
			}
		}
	}
	cfg, err := p.source.CurrentFeeConfig(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p.defaultBps, nil
		}
		return 0, err
	}
	if cfg.PercentBps > MaxBps {
		return 0, fmt.Errorf("%w: %d bps", ErrInvalidPercent, cfg.PercentBps)
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, strconv.FormatUint(uint64(cfg.PercentBps), 10), cacheTTL).Err(); err != nil {
			log.Printf("feepolicy: cache set failed: %v", err)
		}
	}
	return cfg.PercentBps, nil
}

// Invalidate drops the cached percentage. Called by the admin update path
// after a new fee config version is written.
func (p *Policy) Invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, cacheKey).Err(); err != nil {
		log.Printf("feepolicy: cache invalidation failed: %v", err)
	}
}
