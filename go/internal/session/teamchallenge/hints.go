package teamchallenge

import "time"

// minHintRemaining is the least time left on a prompt when its last hint appears
const minHintRemaining = 10 * time.Second

// HintRevealAt returns the elapsed time at which hint i of hintCount becomes
// visible on a prompt lasting d. Hints appear as the remaining time falls to
// max(10s, d·(1-(i+1)/(hintCount+1))), so for d=60s and two hints they show at 20s and 40s.
func HintRevealAt(i, hintCount int, d time.Duration) time.Duration {
	if hintCount <= 0 || i < 0 || i >= hintCount {
		return d
	}
	share := 1 - float64(i+1)/float64(hintCount+1)
	remaining := max(time.Duration(float64(d)*share), minHintRemaining)
	return max(d-remaining, 0)
}

// VisibleHints returns the hints revealed after elapsed on a prompt lasting d
func VisibleHints(hints []string, d, elapsed time.Duration) []string {
	visible := make([]string, 0, len(hints))
	for i, h := range hints {
		if elapsed >= HintRevealAt(i, len(hints), d) {
			visible = append(visible, h)
		}
	}
	return visible
}

// HintSchedule returns the reveal offsets of every hint, in seconds
func HintSchedule(hintCount int, d time.Duration) []float64 {
	out := make([]float64, hintCount)
	for i := range out {
		out[i] = HintRevealAt(i, hintCount, d).Seconds()
	}
	return out
}
