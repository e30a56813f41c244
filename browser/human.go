package browser

import (
	"context"
	"math/rand/v2"
	"time"
	"unicode"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Pacing constants for human-plausible input. Typing is per-character with
// occasional hesitation; mouse moves are stepped with pixel jitter; scrolls
// land in uneven increments.
const (
	typeCharDelayMinMs  = 50
	typeCharDelayMaxMs  = 150
	typeHesitationProb  = 0.10
	typeHesitationMinMs = 200
	typeHesitationMaxMs = 800
	typeRhythmSpeedup   = 0.8
	typeSpecialSlowdown = 1.5

	mouseStepsMin       = 3
	mouseStepsMax       = 7
	mouseJitterPx       = 2.0
	mouseStepDelayMinMs = 10
	mouseStepDelayMaxMs = 30

	scrollIncrementsMin  = 3
	scrollIncrementsMax  = 8
	scrollVariation      = 0.25
	scrollStepDelayMinMs = 50
	scrollStepDelayMaxMs = 150
)

// smartDelays paces the gap before an action, keyed by action kind.
var smartDelays = map[string][2]float64{
	"click":    {0.5, 2.0},
	"type":     {1.0, 3.0},
	"scroll":   {0.3, 1.5},
	"navigate": {2.0, 5.0},
	"read":     {3.0, 8.0},
}

type point struct {
	x, y float64
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randDurationMs(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rand.IntN(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// humanDelay pauses for a random interval within [minMs, maxMs].
func humanDelay(ctx context.Context, minMs, maxMs int) error {
	return sleepCtx(ctx, randDurationMs(minMs, maxMs))
}

// smartDelay pauses before an action for an interval tuned to its kind.
func smartDelay(ctx context.Context, action string) error {
	rng, ok := smartDelays[action]
	if !ok {
		rng = [2]float64{0.5, 1.5}
	}
	sec := rng[0] + rand.Float64()*(rng[1]-rng[0])
	return sleepCtx(ctx, time.Duration(sec*float64(time.Second)))
}

// randomPointIn picks a point inside the central region of the box, away
// from the edges where misclicks happen.
func randomPointIn(r Rect) (float64, float64) {
	if r.Width <= 2 || r.Height <= 2 {
		return r.Left + r.Width/2, r.Top + r.Height/2
	}
	marginX := r.Width * 0.2
	marginY := r.Height * 0.2
	x := r.Left + marginX + rand.Float64()*(r.Width-2*marginX)
	y := r.Top + marginY + rand.Float64()*(r.Height-2*marginY)
	return x, y
}

// mousePath plans a stepped move from one point to another with small
// jitter on intermediate steps. The final step lands exactly on target.
func mousePath(fromX, fromY, toX, toY float64) []point {
	steps := mouseStepsMin + rand.IntN(mouseStepsMax-mouseStepsMin+1)
	path := make([]point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := fromX + (toX-fromX)*t
		y := fromY + (toY-fromY)*t
		if i < steps {
			x += (rand.Float64()*2 - 1) * mouseJitterPx
			y += (rand.Float64()*2 - 1) * mouseJitterPx
		}
		path = append(path, point{x: x, y: y})
	}
	return path
}

// scrollDeltas splits a scroll distance into uneven increments.
func scrollDeltas(amount int) []float64 {
	n := scrollIncrementsMin + rand.IntN(scrollIncrementsMax-scrollIncrementsMin+1)
	base := float64(amount) / float64(n)
	deltas := make([]float64, n)
	for i := range deltas {
		variation := 1 + (rand.Float64()*2-1)*scrollVariation
		deltas[i] = base * variation
	}
	return deltas
}

// typeDelay computes the pause after typing r, given the previous rune.
// Letter runs speed up; punctuation and symbols slow down.
func typeDelay(prev, r rune) time.Duration {
	d := float64(randDurationMs(typeCharDelayMinMs, typeCharDelayMaxMs))
	switch {
	case !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ':
		d *= typeSpecialSlowdown
	case unicode.IsLower(prev) && unicode.IsLower(r):
		d *= typeRhythmSpeedup
	}
	return time.Duration(d)
}

// humanMouseMove walks the pointer from one point to another in steps.
// It must run inside a chromedp executor context.
func humanMouseMove(ctx context.Context, fromX, fromY, toX, toY float64) error {
	for _, p := range mousePath(fromX, fromY, toX, toY) {
		if err := input.DispatchMouseEvent(input.MouseMoved, p.x, p.y).Do(ctx); err != nil {
			return err
		}
		if err := humanDelay(ctx, mouseStepDelayMinMs, mouseStepDelayMaxMs); err != nil {
			return err
		}
	}
	return nil
}

// humanClickXY presses and releases the left button at the given point.
func humanClickXY(ctx context.Context, x, y float64) error {
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	if err := press.Do(ctx); err != nil {
		return err
	}
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	return release.Do(ctx)
}

// humanTypeText types text one character at a time with human pacing.
func humanTypeText(ctx context.Context, text string) error {
	prev := rune(0)
	for _, r := range text {
		if rand.Float64() < typeHesitationProb {
			if err := humanDelay(ctx, typeHesitationMinMs, typeHesitationMaxMs); err != nil {
				return err
			}
		}
		if err := chromedp.KeyEvent(string(r)).Do(ctx); err != nil {
			return err
		}
		if err := sleepCtx(ctx, typeDelay(prev, r)); err != nil {
			return err
		}
		prev = r
	}
	return nil
}

// humanScroll wheels the page (or an element at x,y) through uneven
// increments. Direction is "up" or "down".
func humanScroll(ctx context.Context, x, y float64, direction string, amount int) error {
	sign := 1.0
	if direction == "up" {
		sign = -1.0
	}
	for _, d := range scrollDeltas(amount) {
		ev := input.DispatchMouseEvent(input.MouseWheel, x, y).
			WithDeltaX(0).
			WithDeltaY(sign * d)
		if err := ev.Do(ctx); err != nil {
			return err
		}
		if err := humanDelay(ctx, scrollStepDelayMinMs, scrollStepDelayMaxMs); err != nil {
			return err
		}
	}
	return nil
}
