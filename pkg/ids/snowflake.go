// Package ids generates 64-bit snowflake identifiers without database
// round trips.
//
// Layout: 41 bits of millisecond timestamp (custom epoch), 10 bits of
// node ID, 12 bits of per-millisecond sequence. IDs generated by one
// Generator are strictly increasing, including across clock regressions.
package ids

import (
	"fmt"
	"sync"
	"time"
)

const (
	// epoch is 2020-01-01T00:00:00Z in Unix milliseconds.
	epoch int64 = 1577836800000

	nodeBits     = 10
	sequenceBits = 12

	maxNode     = int64(-1) ^ (int64(-1) << nodeBits)
	maxSequence = int64(-1) ^ (int64(-1) << sequenceBits)

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits
)

// Generator produces snowflake IDs. Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	node     int64
	lastTime int64
	sequence int64
}

// NewGenerator creates a generator for the given node ID (0..1023).
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("node ID %d out of range [0, %d]", node, maxNode)
	}
	return &Generator{node: node}, nil
}

// Next returns the next snowflake ID.
//
// If the wall clock moves backwards the generator keeps issuing IDs
// against the last observed timestamp, burning sequence numbers until
// the clock catches up. This preserves monotonicity at the cost of
// briefly spinning when a millisecond's sequence space is exhausted.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastTime {
		now = g.lastTime
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted for this millisecond; wait for the next one.
			for now <= g.lastTime {
				now = time.Now().UnixMilli()
				if now < g.lastTime {
					time.Sleep(time.Millisecond)
				}
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	return (now-epoch)<<timestampShift | g.node<<nodeShift | g.sequence
}

// Timestamp extracts the generation time of a snowflake ID.
func Timestamp(id int64) time.Time {
	ms := (id >> timestampShift) + epoch
	return time.UnixMilli(ms)
}

var defaultGen = mustGenerator()

func mustGenerator() *Generator {
	g, err := NewGenerator(1)
	if err != nil {
		panic(err)
	}
	return g
}

// Next returns the next ID from the package-level generator.
func Next() int64 {
	return defaultGen.Next()
}
