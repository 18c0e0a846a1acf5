package counter

import (
	"context"
	"strconv"

	"github.com/glorifyai/glorify/internal/pkg/cache"
)

const signalsKey = "billing:counters:signals"

// Signal names surfaced by the reconciler and the generation driver. These
// are observability counters, not business state: losing them never affects
// the ledger.
const (
	SignalUnmappedPlan       = "unmapped_plan"
	SignalInvoiceFailed      = "invoice_failed"
	SignalInvalidSignature   = "webhook_invalid_signature"
	SignalGenerationFailed   = "generation_failed"
	SignalGenerationTimedOut = "generation_timed_out"
)

// AddSignal increments the named counter in Redis.
func AddSignal(name string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, signalsKey, name, 1).Err()
}

// Snapshot returns all signal counters.
func Snapshot() (map[string]int64, error) {
	ctx := context.Background()
	raw, err := cache.GetClient().HGetAll(ctx, signalsKey).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(raw))
	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// Reset drops all signal counters.
func Reset() error {
	return cache.Delete(signalsKey)
}
