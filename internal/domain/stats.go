package domain

import "time"

// SweepStats holds statistics about one pagination walk over a source.
type SweepStats struct {
	SourceID  int64
	Pages     int
	Fetched   int
	New       int
	Processed int
	Skipped   int
	Failed    int
	Watermark int64
	Aborted   bool
	Duration  time.Duration
}

// CycleStats aggregates the sweeps of one scheduled cycle.
type CycleStats struct {
	Sweeps   []SweepStats
	Duration time.Duration
}

func (c *CycleStats) Processed() int {
	n := 0
	for _, s := range c.Sweeps {
		n += s.Processed
	}
	return n
}

func (c *CycleStats) Failed() int {
	n := 0
	for _, s := range c.Sweeps {
		n += s.Failed
		if s.Aborted {
			n++
		}
	}
	return n
}
