package visualizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// A Source hands out the latest block of mono samples.
// ok is false if nothing has been written yet.
type Source interface {
	Snapshot(dst []float32) (snapshot []float32, ok bool)
}

// Sampler periodically reads a Source and delivers a fixed length display
// sequence to a sink.
//
// Resampling errors never reach the sink: the previous display is kept.
type Sampler struct {
	logger *slog.Logger

	source   Source
	interval time.Duration
	points   int
	sink     func([]float32)

	scratch []float32
	display []float32
}

func NewSampler(source Source, interval time.Duration, points int, sink func([]float32)) *Sampler {
	logger := slog.Default().With(
		"sampler uuid", uuid.New(),
	)
	return &Sampler{
		logger:   logger,
		source:   source,
		interval: interval,
		points:   points,
		sink:     sink,
		display:  make([]float32, max(points, 0)),
	}
}

// Poll takes one snapshot and returns the display sequence derived from it.
//
// A source that has never been written yields all zeros.
// The returned slice must not be modified by the caller.
func (s *Sampler) Poll() []float32 {
	var ok bool
	s.scratch, ok = s.source.Snapshot(s.scratch)
	if !ok {
		clear(s.display)
		return s.display
	}

	display, err := Resample(s.scratch, s.points)
	if err != nil {
		s.logger.Debug("could not resample mix, keeping previous display", "err", err)
		return s.display
	}
	s.display = display
	return s.display
}

// Run polls every interval until ctx is done, passing each display to the sink.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("sampler running", "interval", s.interval, "points", s.points)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("sampler stopped")
			return
		case <-ticker.C:
			s.sink(s.Poll())
		}
	}
}
