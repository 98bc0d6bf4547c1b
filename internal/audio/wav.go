package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned when a file is not a readable PCM WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Info describes a decoded clip.
type Info struct {
	SampleRate  int   `json:"sample_rate"`
	Channels    int   `json:"channels"`
	BitDepth    int   `json:"bit_depth"`
	TotalFrames int64 `json:"total_frames"`
}

// DurationSec returns the clip length in seconds.
func (i Info) DurationSec() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.TotalFrames) / float64(i.SampleRate)
}

// Clip is a fully decoded WAV file held in memory.
type Clip struct {
	info        Info
	audioFormat int
	data        []int
}

// Open decodes the WAV file at path.
// TODO: decode windows with seeks instead of holding the whole PCM buffer for multi-hour files.
func Open(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}

	channels := int(d.NumChans)
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %s has no channels", ErrUnsupportedFormat, filepath.Base(path))
	}

	return &Clip{
		info: Info{
			SampleRate:  int(d.SampleRate),
			Channels:    channels,
			BitDepth:    int(d.BitDepth),
			TotalFrames: int64(len(buf.Data) / channels),
		},
		audioFormat: int(d.WavAudioFormat),
		data:        buf.Data,
	}, nil
}

// Info returns the clip properties.
func (c *Clip) Info() Info {
	return c.info
}

// Extract writes the frames covered by w into a new WAV file under dir and
// returns its path.
func (c *Clip) Extract(w Window, dir string) (string, error) {
	if w.StartFrame < 0 || w.EndFrame > c.info.TotalFrames || w.StartFrame > w.EndFrame {
		return "", fmt.Errorf("window %d [%d,%d) outside clip of %d frames",
			w.Index, w.StartFrame, w.EndFrame, c.info.TotalFrames)
	}

	ch := int64(c.info.Channels)
	samples := c.data[w.StartFrame*ch : w.EndFrame*ch]

	out := filepath.Join(dir, fmt.Sprintf("chunk-%03d-%s.wav", w.Index, uuid.NewString()[:8]))
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create chunk file: %w", err)
	}

	enc := wav.NewEncoder(f, c.info.SampleRate, c.info.BitDepth, c.info.Channels, c.audioFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.info.Channels, SampleRate: c.info.SampleRate},
		Data:           samples,
		SourceBitDepth: c.info.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		_ = os.Remove(out)
		return "", fmt.Errorf("encode chunk %d: %w", w.Index, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		_ = os.Remove(out)
		return "", fmt.Errorf("finalize chunk %d: %w", w.Index, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close chunk %d: %w", w.Index, err)
	}
	return out, nil
}
