package rewards

import (
	"errors"
	"testing"
)

func TestFibonacci(t *testing.T) {
	tests := []struct {
		n    int
		want int64
	}{
		{0, 0}, {1, 1}, {2, 1}, {3, 2}, {4, 3}, {7, 13}, {10, 55},
		{92, 7540113804746346429},
	}
	for _, tt := range tests {
		got, err := Fibonacci(tt.n)
		if err != nil {
			t.Fatalf("Fibonacci(%d): unexpected error %v", tt.n, err)
		}
		if got != tt.want {
			t.Errorf("Fibonacci(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestFibonacci_OutOfRange(t *testing.T) {
	for _, n := range []int{-1, 93} {
		if _, err := Fibonacci(n); !errors.Is(err, ErrValidation) {
			t.Errorf("Fibonacci(%d): expected validation error, got %v", n, err)
		}
	}
}

func TestEstimateRankReward(t *testing.T) {
	tests := []struct {
		rank int
		want int64
	}{
		{1, 2},
		{2, 3},
		{3, 5},
		{5, 13},
	}
	for _, tt := range tests {
		got, err := EstimateRankReward(tt.rank)
		if err != nil {
			t.Fatalf("rank %d: unexpected error %v", tt.rank, err)
		}
		if got.Amount != tt.want {
			t.Errorf("rank %d: expected %d, got %d", tt.rank, tt.want, got.Amount)
		}
		if got.Authoritative {
			t.Errorf("rank %d: estimate must not be authoritative", tt.rank)
		}
	}
}

func TestEstimateRankReward_RejectsInvalidRank(t *testing.T) {
	for _, rank := range []int{0, -3, MaxEstimatedRank + 1} {
		if _, err := EstimateRankReward(rank); !errors.Is(err, ErrValidation) {
			t.Errorf("rank %d: expected validation error, got %v", rank, err)
		}
	}
	if _, err := EstimateRankReward(MaxEstimatedRank); err != nil {
		t.Errorf("max rank should be accepted, got %v", err)
	}
}

func TestAmountEstimate_ServerWins(t *testing.T) {
	est, _ := EstimateRankReward(1)

	if got := est.Reconcile(nil); got != est {
		t.Errorf("without a server value the estimate should stand, got %+v", got)
	}

	server := int64(40)
	got := est.Reconcile(&server)
	if got.Amount != 40 || !got.Authoritative {
		t.Errorf("expected authoritative server amount 40, got %+v", got)
	}

	zero := int64(0)
	if got := est.Reconcile(&zero); got.Amount != 0 || !got.Authoritative {
		t.Errorf("a zero server amount still wins, got %+v", got)
	}
}
