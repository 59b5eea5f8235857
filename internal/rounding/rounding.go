// Package rounding implements currency rounding and rounding-remainder
// distribution. Rounding a set of shares independently can leave the rounded
// sum short of (or past) the true total by a few smallest units; the whole
// residual is handed to exactly one participant so the audit trail stays a
// single adjustment.
package rounding

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/shopspring/decimal"
)

// Mode selects how ties and fractions are resolved when rounding to a step.
type Mode string

const (
	// RoundHalfUp rounds .5 away from zero.
	RoundHalfUp Mode = "half_up"
	// RoundHalfEven rounds .5 to the nearest even multiple (banker's rounding).
	RoundHalfEven Mode = "half_even"
	// Floor rounds toward negative infinity.
	Floor Mode = "floor"
	// Ceil rounds toward positive infinity.
	Ceil Mode = "ceil"
)

// RemainderPolicy selects which participant absorbs the rounding residual.
type RemainderPolicy string

const (
	// LargestShare gives the remainder to the participant with the largest
	// raw (pre-rounding) share; ties fall back to first listed.
	LargestShare RemainderPolicy = "largest_share"
	// Payer gives the remainder to the expense's payer.
	Payer RemainderPolicy = "payer"
	// FirstListed gives the remainder to the first participant in order.
	FirstListed RemainderPolicy = "first_listed"
	// Deterministic picks a participant via a seeded pseudorandom choice,
	// reproducible for identical participant lists.
	Deterministic RemainderPolicy = "deterministic"
)

// divPrecision is the scale used for the intermediate quotient when rounding
// to an arbitrary step. Steps are powers of ten in practice, so the division
// is exact well below this.
const divPrecision = 28

// Round rounds amount to the nearest multiple of step under the given mode.
// step must be positive. The function is pure: identical inputs always return
// identical outputs.
func Round(amount, step decimal.Decimal, mode Mode) (decimal.Decimal, error) {
	if step.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("rounding step must be positive, got %s", step)
	}

	q := amount.DivRound(step, divPrecision)

	var n decimal.Decimal
	switch mode {
	case RoundHalfUp:
		n = q.Round(0)
	case RoundHalfEven:
		n = q.RoundBank(0)
	case Floor:
		n = q.Floor()
	case Ceil:
		n = q.Ceil()
	default:
		return decimal.Decimal{}, fmt.Errorf("unknown rounding mode %q", mode)
	}

	return n.Mul(step), nil
}

// DistributeRemainder adds the entire remainder to exactly one participant's
// rounded amount, chosen by policy, and returns a fresh map. order is the
// participant iteration order and drives FirstListed and all tie-breaks; raw
// holds the pre-rounding shares consulted by LargestShare. A zero remainder
// returns a copy of rounded unchanged.
func DistributeRemainder(
	order []string,
	rounded map[string]decimal.Decimal,
	raw map[string]decimal.Decimal,
	remainder decimal.Decimal,
	policy RemainderPolicy,
	payerID string,
) (map[string]decimal.Decimal, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("cannot distribute remainder with no participants")
	}

	out := make(map[string]decimal.Decimal, len(rounded))
	for id, amt := range rounded {
		out[id] = amt
	}
	if remainder.IsZero() {
		return out, nil
	}

	receiver, err := pickReceiver(order, raw, policy, payerID)
	if err != nil {
		return nil, err
	}
	out[receiver] = out[receiver].Add(remainder)
	return out, nil
}

func pickReceiver(order []string, raw map[string]decimal.Decimal, policy RemainderPolicy, payerID string) (string, error) {
	switch policy {
	case FirstListed:
		return order[0], nil

	case Payer:
		for _, id := range order {
			if id == payerID {
				return id, nil
			}
		}
		return "", fmt.Errorf("payer %q is not a participant", payerID)

	case LargestShare:
		receiver := order[0]
		largest := raw[receiver]
		for _, id := range order[1:] {
			if raw[id].GreaterThan(largest) {
				receiver = id
				largest = raw[id]
			}
		}
		return receiver, nil

	case Deterministic:
		rng := rand.New(rand.NewSource(seedFor(order)))
		return order[rng.Intn(len(order))], nil

	default:
		return "", fmt.Errorf("unknown remainder policy %q", policy)
	}
}

// seedFor hashes the ordered participant ids so the Deterministic policy is
// stable across runs and platforms for a given participant list.
func seedFor(order []string) int64 {
	h := fnv.New64a()
	for _, id := range order {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}
