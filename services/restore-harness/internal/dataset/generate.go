package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Labels is the fixed product vocabulary records draw from.
var Labels = []string{"Widget", "Gadget", "Device", "Tool"}

const (
	DefaultKeyPrefix = "GO-ORD"

	minAmountCents = 1_000
	maxAmountCents = 100_000
	groupCount     = 100
)

type Options struct {
	KeyPrefix string
	// Seed makes group, label and amount reproducible. Nil draws a random seed.
	Seed *int64
	Now  func() time.Time
}

// Generate returns exactly count records. Keys come from the 1-based record index, never
// from the random source, so they are distinct whatever the seed.
func Generate(count int, opts Options) ([]Record, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: record count must be positive (got %d)", ErrInvalidArgument, count)
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var rng *rand.Rand
	if opts.Seed != nil {
		s := uint64(*opts.Seed)
		rng = rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ts := now().UTC().Format(time.RFC3339)
	records := make([]Record, 0, count)
	for i := 1; i <= count; i++ {
		cents := minAmountCents + rng.Int64N(maxAmountCents-minAmountCents+1)
		records = append(records, Record{
			Key:       fmt.Sprintf("%s-%04d", prefix, i),
			Group:     fmt.Sprintf("CUST-%03d", 1+rng.IntN(groupCount)),
			Label:     Labels[rng.IntN(len(Labels))],
			Amount:    decimal.New(cents, -2),
			Timestamp: ts,
		})
	}
	return records, nil
}
