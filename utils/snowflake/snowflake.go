// Package snowflake issues time-ordered 63-bit ids for proxy members and
// global chat channels. Layout: 41 bits of milliseconds since Epoch, 10
// bits of worker id, 12 bits of per-millisecond sequence.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1704067200000

	workerIDBits = 10
	sequenceBits = 12

	MaxWorkerID  = -1 ^ (-1 << workerIDBits)
	sequenceMask = -1 ^ (-1 << sequenceBits)

	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

var (
	ErrInvalidWorkerID     = errors.New("snowflake: worker id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// Generator is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	now      func() int64

	sequence      int64
	lastTimestamp int64
}

func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// MustNew panics on an invalid worker id; meant for tests and wiring code
// with constant ids.
func MustNew(workerID int64) *Generator {
	g, err := NewGenerator(workerID)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTimestamp {
		return 0, ErrClockMovedBackwards
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for ts <= g.lastTimestamp {
				ts = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	return (ts-Epoch)<<timestampShift | g.workerID<<workerIDShift | g.sequence, nil
}

// Parse splits an id into its creation time, worker id and sequence.
func Parse(id int64) (created time.Time, workerID int64, sequence int64) {
	created = time.UnixMilli((id >> timestampShift) + Epoch)
	workerID = (id >> workerIDShift) & MaxWorkerID
	sequence = id & sequenceMask
	return
}
