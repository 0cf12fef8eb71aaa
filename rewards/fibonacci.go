package rewards

import "fmt"

const (
	// RankRewardOffset is added to the rank before looking up the Fibonacci term.
	RankRewardOffset = 2
	// maxFibonacciN is the largest n whose term fits in an int64.
	maxFibonacciN = 92
	// MaxEstimatedRank is the largest rank that can be estimated without overflow.
	MaxEstimatedRank = maxFibonacciN - RankRewardOffset
)

// Fibonacci returns F(n) with F(0)=0 and F(1)=1.
func Fibonacci(n int) (int64, error) {
	if n < 0 || n > maxFibonacciN {
		return 0, Validation("fibonacci", fmt.Sprintf("n must be between 0 and %d, got %d", maxFibonacciN, n))
	}
	var a, b int64 = 0, 1
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a, nil
}

// AmountEstimate is a reward amount that may or may not come from the backend.
// Only an Authoritative amount reflects what is actually credited.
type AmountEstimate struct {
	Amount        int64 `json:"amount"`
	Authoritative bool  `json:"authoritative"`
}

// EstimateRankReward previews the payout for a 1-based rank as F(2 + rank).
// It mirrors the backend formula for display only; the backend value always wins.
func EstimateRankReward(rank int) (AmountEstimate, error) {
	if rank < 1 || rank > MaxEstimatedRank {
		return AmountEstimate{}, Validation("estimate rank reward",
			fmt.Sprintf("rank must be between 1 and %d, got %d", MaxEstimatedRank, rank))
	}
	amount, err := Fibonacci(rank + RankRewardOffset)
	if err != nil {
		return AmountEstimate{}, err
	}
	return AmountEstimate{Amount: amount}, nil
}

// Reconcile replaces the estimate with the server amount when one is known.
func (e AmountEstimate) Reconcile(serverAmount *int64) AmountEstimate {
	if serverAmount == nil {
		return e
	}
	return AmountEstimate{Amount: *serverAmount, Authoritative: true}
}
