package dispatch

import "testing"

func TestCheckInvariantsAcceptsValidSolution(t *testing.T) {
	p := baseProblem(4)
	s, err := FallbackSolve(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckInvariants(p, s); err != nil {
		t.Errorf("valid fallback solution rejected: %v", err)
	}
}

func TestCheckInvariantsRejectsPowerImbalance(t *testing.T) {
	p := baseProblem(1)
	s := newSolution(1, SolverFallback)
	s.SoC[0] = 0.5
	s.GridImp[0] = 1 // load is 10; leaves 9 unaccounted for
	if err := CheckInvariants(p, s); err == nil {
		t.Error("expected power balance violation, got nil")
	}
}

func TestCheckInvariantsRejectsMutualExclusivityViolation(t *testing.T) {
	p := baseProblem(1)
	s := newSolution(1, SolverFallback)
	s.SoC[0] = 0.5
	s.BattCh[0] = 5
	s.BattDis[0] = 5
	s.GridImp[0] = 10
	if err := CheckInvariants(p, s); err == nil {
		t.Error("expected mutual exclusivity violation, got nil")
	}
}

func TestCheckInvariantsRejectsSoCOutOfBounds(t *testing.T) {
	p := baseProblem(1)
	s := newSolution(1, SolverFallback)
	s.SoC[0] = p.BESS.SoCMax + 0.1
	s.GridImp[0] = 10
	if err := CheckInvariants(p, s); err == nil {
		t.Error("expected soc bounds violation, got nil")
	}
}

func TestMedianOddAndEven(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("median of odd-length slice = %v, want 2", got)
	}
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("median of even-length slice = %v, want 2.5", got)
	}
	if got := median(nil); got != 0 {
		t.Errorf("median of empty slice = %v, want 0", got)
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	vals := []float64{5, 1, 3}
	_ = median(vals)
	if vals[0] != 5 || vals[1] != 1 || vals[2] != 3 {
		t.Errorf("median mutated its input: %v", vals)
	}
}
