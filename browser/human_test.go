package browser

import (
	"math"
	"testing"
	"time"
)

func TestMousePathEndsOnTarget(t *testing.T) {
	for i := 0; i < 50; i++ {
		path := mousePath(0, 0, 200, 120)
		if len(path) < mouseStepsMin || len(path) > mouseStepsMax {
			t.Fatalf("path length %d outside [%d, %d]", len(path), mouseStepsMin, mouseStepsMax)
		}
		last := path[len(path)-1]
		if last.x != 200 || last.y != 120 {
			t.Fatalf("final step = (%v, %v), want exact target", last.x, last.y)
		}
	}
}

func TestMousePathJitterBounded(t *testing.T) {
	for i := 0; i < 50; i++ {
		path := mousePath(0, 0, 100, 0)
		for j, p := range path {
			// Straight horizontal line: any y offset is jitter.
			if math.Abs(p.y) > mouseJitterPx+0.001 {
				t.Fatalf("step %d y=%v exceeds jitter bound", j, p.y)
			}
		}
	}
}

func TestScrollDeltasSumNearAmount(t *testing.T) {
	for i := 0; i < 50; i++ {
		deltas := scrollDeltas(500)
		if len(deltas) < scrollIncrementsMin || len(deltas) > scrollIncrementsMax {
			t.Fatalf("increments %d outside [%d, %d]", len(deltas), scrollIncrementsMin, scrollIncrementsMax)
		}
		var sum float64
		for _, d := range deltas {
			if d <= 0 {
				t.Fatalf("non-positive increment %v", d)
			}
			sum += d
		}
		// Each increment varies ±25%, so the total stays within that band.
		if sum < 500*(1-scrollVariation) || sum > 500*(1+scrollVariation) {
			t.Fatalf("sum %v strays too far from 500", sum)
		}
	}
}

func TestRandomPointInStaysInside(t *testing.T) {
	box := Rect{Left: 10, Top: 20, Width: 100, Height: 50}
	for i := 0; i < 100; i++ {
		x, y := randomPointIn(box)
		if x < box.Left || x > box.Left+box.Width {
			t.Fatalf("x=%v outside box", x)
		}
		if y < box.Top || y > box.Top+box.Height {
			t.Fatalf("y=%v outside box", y)
		}
	}
}

func TestRandomPointInDegenerateBox(t *testing.T) {
	box := Rect{Left: 5, Top: 5, Width: 1, Height: 1}
	x, y := randomPointIn(box)
	if x != 5.5 || y != 5.5 {
		t.Errorf("degenerate box should yield center, got (%v, %v)", x, y)
	}
}

func TestTypeDelayRanges(t *testing.T) {
	minBase := time.Duration(typeCharDelayMinMs) * time.Millisecond
	maxBase := time.Duration(typeCharDelayMaxMs) * time.Millisecond

	for i := 0; i < 100; i++ {
		// Lowercase run speeds up.
		d := typeDelay('a', 'b')
		if d < time.Duration(float64(minBase)*typeRhythmSpeedup) || d > maxBase {
			t.Fatalf("letter-run delay %v out of range", d)
		}
		// Symbols slow down.
		d = typeDelay('a', '@')
		if d < minBase || d > time.Duration(float64(maxBase)*typeSpecialSlowdown) {
			t.Fatalf("symbol delay %v out of range", d)
		}
	}
}

func TestSmartDelayKindsCovered(t *testing.T) {
	for _, kind := range []string{"click", "type", "scroll", "navigate", "read"} {
		if _, ok := smartDelays[kind]; !ok {
			t.Errorf("missing smart delay for %q", kind)
		}
	}
}
