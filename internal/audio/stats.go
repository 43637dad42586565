package audio

import "sync/atomic"

// Stats is a point-in-time copy of the router's data-path counters.
type Stats struct {
	BlocksCaptured uint64
	BlocksPlayed   uint64
	// Dropped counts captured blocks discarded because the channel was full.
	Dropped        uint64
	// Underruns counts playback periods filled with silence.
	Underruns      uint64
	// Faults counts host-reported callback status flags by name.
	Faults         map[string]uint64
}

// TotalFaults sums every callback fault counter.
func (s Stats) TotalFaults() uint64 {
	var n uint64
	for _, v := range s.Faults {
		n += v
	}
	return n
}

type counters struct {
	captured  atomic.Uint64
	played    atomic.Uint64
	dropped   atomic.Uint64
	underruns atomic.Uint64
	faults    [len(statusNames)]atomic.Uint64
}

// fault records every flag set in status. Safe on a callback thread.
func (c *counters) fault(status CallbackStatus) {
	for i, sn := range statusNames {
		if status&sn.flag != 0 {
			c.faults[i].Add(1)
		}
	}
}

func (c *counters) snapshot() Stats {
	s := Stats{
		BlocksCaptured: c.captured.Load(),
		BlocksPlayed:   c.played.Load(),
		Dropped:        c.dropped.Load(),
		Underruns:      c.underruns.Load(),
		Faults:         make(map[string]uint64, len(statusNames)),
	}
	for i, sn := range statusNames {
		s.Faults[sn.name] = c.faults[i].Load()
	}
	return s
}
