package qfqrl

import "testing"

func TestSetWeightAndLmaxDisabledSentinel(t *testing.T) {
	c := newClass(1, 4, 1500, newFIFOQueue())
	if c.disabled() {
		t.Fatal("class with weight 4 should not be disabled")
	}
	c.setWeightAndLmax(0, 1500)
	if !c.disabled() {
		t.Fatal("class with weight 0 should be disabled")
	}
	if c.invW != disabledInvW {
		t.Fatalf("invW = %d, want disabledInvW = %d", c.invW, disabledInvW)
	}
}

func TestCalcIndexMonotonicInLmaxAndWeight(t *testing.T) {
	lowIdx := calcIndex(OneFP/1, 512)
	highIdx := calcIndex(OneFP/1, 2048)
	if highIdx < lowIdx {
		t.Fatalf("a larger lmax should never map to a smaller group index: %d < %d", highIdx, lowIdx)
	}

	heavyIdx := calcIndex(OneFP/64, 2048)  // heavier class: larger weight, smaller invW
	lightIdx := calcIndex(OneFP/1, 2048)   // lighter class: smaller weight, larger invW
	if heavyIdx > lightIdx {
		t.Fatalf("a heavier class should never map to a larger group index: %d > %d", heavyIdx, lightIdx)
	}
}

func TestCalcIndexDisabledIsGroupZero(t *testing.T) {
	if idx := calcIndex(disabledInvW, 2048); idx != 0 {
		t.Fatalf("disabled class should map to group 0, got %d", idx)
	}
}

func TestCalcIndexClampedToMaxIndex(t *testing.T) {
	idx := calcIndex(OneFP/1, LMax)
	if idx < 0 || idx > MaxIndex {
		t.Fatalf("calcIndex out of range: %d", idx)
	}
}

func TestValidateWeight(t *testing.T) {
	if err := validateWeight(0); err != nil {
		t.Fatalf("weight 0 (disable request) should be valid: %v", err)
	}
	if err := validateWeight(uint32(MaxWeight)); err != nil {
		t.Fatalf("weight at MaxWeight should be valid: %v", err)
	}
	if err := validateWeight(uint32(MaxWeight) + 1); err != ErrInvalidWeight {
		t.Fatalf("weight above MaxWeight should be ErrInvalidWeight, got %v", err)
	}
}

func TestValidateLmax(t *testing.T) {
	if err := validateLmax(0); err != ErrInvalidLmax {
		t.Fatalf("lmax 0 should be ErrInvalidLmax, got %v", err)
	}
	if err := validateLmax(LMax + 1); err != ErrInvalidLmax {
		t.Fatalf("lmax above LMax should be ErrInvalidLmax, got %v", err)
	}
	if err := validateLmax(LMax); err != nil {
		t.Fatalf("lmax at LMax should be valid: %v", err)
	}
}
