package jobs

import (
	"math"
	"time"
)

// etaMinProgress is the progress below which a projection is too noisy to use.
const etaMinProgress = 10

// InitialEstimate is the remaining-time guess shown before a job has started:
// three seconds of work per second of video plus fixed overhead, and extra
// for narration.
func InitialEstimate(durationSec float64, voiceover bool) int {
	if durationSec <= 0 {
		durationSec = 10
	}
	eta := int(durationSec*3) + 30
	if voiceover {
		eta += 15
	}
	return eta
}

// EstimateRemaining projects the remaining seconds linearly from elapsed time
// and percent complete. Below 10% the previous estimate is kept. The result
// depends only on its inputs.
func EstimateRemaining(elapsed time.Duration, percent int, previous *int) *int {
	if percent < etaMinProgress {
		if previous == nil {
			return nil
		}
		prev := *previous
		return &prev
	}

	remaining := 0
	if percent < 100 {
		e := elapsed.Seconds()
		total := e * 100 / float64(percent)
		remaining = int(math.Floor(math.Max(0, total-e)))
	}
	return &remaining
}
