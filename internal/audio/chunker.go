package audio

import (
	"errors"
	"fmt"
	"math"
)

// Default window policy: 30s windows sharing 12s (40%) with their neighbour,
// so a word cut at one boundary is whole in the adjacent window.
const (
	DefaultWindowSec  = 30.0
	DefaultOverlapSec = 12.0
)

// ErrInvalidConfig is returned for window/overlap settings that cannot be chunked.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Window is one time slice of an audio stream, in frames and seconds.
type Window struct {
	Index      int     `json:"index"`
	StartFrame int64   `json:"start_frame"`
	EndFrame   int64   `json:"end_frame"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	HasOverlap bool    `json:"has_overlap"`
}

// Frames returns the window length in frames.
func (w Window) Frames() int64 {
	return w.EndFrame - w.StartFrame
}

// Chunk splits totalFrames into windows of windowSec advancing by
// windowSec-overlapSec. The last window is clamped to totalFrames and
// generation stops at the first window that reaches the end.
func Chunk(totalFrames int64, sampleRate int, windowSec, overlapSec float64) ([]Window, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, sampleRate)
	}
	if windowSec <= 0 {
		return nil, fmt.Errorf("%w: window duration must be positive, got %gs", ErrInvalidConfig, windowSec)
	}
	if overlapSec < 0 {
		return nil, fmt.Errorf("%w: overlap duration must not be negative, got %gs", ErrInvalidConfig, overlapSec)
	}
	if overlapSec >= windowSec {
		return nil, fmt.Errorf("%w: overlap %gs must be shorter than window %gs", ErrInvalidConfig, overlapSec, windowSec)
	}
	if totalFrames < 0 {
		return nil, fmt.Errorf("%w: total frames must not be negative, got %d", ErrInvalidConfig, totalFrames)
	}

	windowFrames := int64(math.Round(float64(sampleRate) * windowSec))
	overlapFrames := int64(math.Round(float64(sampleRate) * overlapSec))
	stepFrames := windowFrames - overlapFrames
	if windowFrames <= 0 || stepFrames <= 0 {
		return nil, fmt.Errorf("%w: %gs window with %gs overlap is below one frame step at %d Hz",
			ErrInvalidConfig, windowSec, overlapSec, sampleRate)
	}

	rate := float64(sampleRate)
	var windows []Window
	for start := int64(0); ; start += stepFrames {
		end := min(start+windowFrames, totalFrames)
		idx := len(windows)
		windows = append(windows, Window{
			Index:      idx,
			StartFrame: start,
			EndFrame:   end,
			StartSec:   float64(start) / rate,
			EndSec:     float64(end) / rate,
			HasOverlap: idx > 0,
		})
		if end >= totalFrames {
			break
		}
	}
	return windows, nil
}
