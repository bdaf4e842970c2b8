// Package cecstat counts what happened to frames and events read from a
// CEC adapter.
package cecstat

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

type Counter int

const (
	Received Counter = iota
	Delivered
	HotPlug
	Gated
	Oversize
	Malformed
	ReceiveErrors
	EventErrors
	PollErrors
	IgnoredEvents
	LostMessages

	numCounters
)

func (c Counter) String() string {
	switch c {
	case Received:
		return "received"
	case Delivered:
		return "delivered"
	case HotPlug:
		return "hotplug"
	case Gated:
		return "gated"
	case Oversize:
		return "oversize"
	case Malformed:
		return "malformed"
	case ReceiveErrors:
		return "receive_errors"
	case EventErrors:
		return "event_errors"
	case PollErrors:
		return "poll_errors"
	case IgnoredEvents:
		return "ignored_events"
	case LostMessages:
		return "lost_messages"
	}
	return ""
}

// All lists every counter in display order.
func All() []Counter {
	all := make([]Counter, numCounters)
	for i := range all {
		all[i] = Counter(i)
	}
	return all
}

// Counters is a set of monotonic counters safe for concurrent use.
// The zero value is ready to use.
type Counters struct {
	v [numCounters]atomic.Uint64
}

func (c *Counters) Inc(ctr Counter) { c.Add(ctr, 1) }

func (c *Counters) Add(ctr Counter, n uint64) {
	if ctr < 0 || ctr >= numCounters {
		return
	}
	c.v[ctr].Add(n)
}

func (c *Counters) Load(ctr Counter) uint64 {
	if ctr < 0 || ctr >= numCounters {
		return 0
	}
	return c.v[ctr].Load()
}

// Snapshot copies the current values of all counters.
func (c *Counters) Snapshot() Stats {
	s := make(Stats, numCounters)
	for i := range c.v {
		s[Counter(i)] = c.v[i].Load()
	}
	return s
}

// Stats holds counter values at one point in time.
type Stats map[Counter]uint64

// Dropped sums everything that was read but not delivered.
func (s Stats) Dropped() uint64 {
	return s[Gated] + s[Oversize] + s[Malformed]
}

// Since computes s(now) - old.
func (s Stats) Since(old Stats) Stats {
	diff := make(Stats, len(s))
	for ctr, v := range s {
		diff[ctr] = v - old[ctr]
	}
	return diff
}

// Print writes one line per non-zero counter, plus the totals.
// uptime is omitted when zero.
func Print(w io.Writer, name string, s Stats, uptime time.Duration) error {
	if uptime > 0 {
		if _, err := fmt.Fprintf(w, "%s (up %s):\n", name, uptime.Round(time.Second)); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
		return err
	}
	for _, ctr := range All() {
		v := s[ctr]
		if v == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %-16s %s\n",
			ctr, humanize.Comma(int64(v)),
		); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "  %-16s %s\n", "dropped", humanize.Comma(int64(s.Dropped())))
	return err
}
