package extract

import (
	"strings"
	"testing"
)

func TestEvaluateTextQuality(t *testing.T) {
	clean := strings.Repeat("Photosynthesis converts light energy into glucose. ", 5)
	if q := evaluateTextQuality(clean); q < 0.7 {
		t.Errorf("clean prose scored %f, want >= 0.7", q)
	}

	corrupted := strings.Repeat("��� ab ", 20)
	if q := evaluateTextQuality(corrupted); q >= 0.7 {
		t.Errorf("corrupted text scored %f, want < 0.7", q)
	}

	if q := evaluateTextQuality("x"); q != 0.1 {
		t.Errorf("near-empty text scored %f, want 0.1", q)
	}

	if clean := evaluateTextQuality(clean); clean > 1 {
		t.Errorf("quality exceeded 1: %f", clean)
	}
}
