package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	if norm := NormalizeL2(x); math.Abs(norm-5) > 1e-9 {
		t.Errorf("norm = %v, want 5", norm)
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2([3 4]) = %v, want [0.6 0.8]", x)
	}

	zero := []float32{0, 0, 0}
	if norm := NormalizeL2(zero); norm != 0 {
		t.Errorf("zero vector norm = %v", norm)
	}
	for _, v := range zero {
		if v != 0 {
			t.Errorf("zero vector changed: %v", zero)
		}
	}
}

func TestNormalizeL2_LargeDimensions(t *testing.T) {
	x := make([]float32, 1536)
	for i := range x {
		x[i] = 0.001
	}
	NormalizeL2(x)
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("squared norm after normalizing = %v, want 1", sum)
	}
}
