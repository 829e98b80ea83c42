package network

import "go.uber.org/atomic"

// Stats is a snapshot of the traffic counters of one party.
type Stats struct {
	BytesSent  uint64 `json:"bytes_sent"`
	BytesRecv  uint64 `json:"bytes_recv"`
	Broadcasts uint64 `json:"broadcasts"`
	ToMaster   uint64 `json:"to_master"`
	FromMaster uint64 `json:"from_master"`
}

// counters only grow between resets.
type counters struct {
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
	broadcasts atomic.Uint64
	toMaster   atomic.Uint64
	fromMaster atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		BytesSent:  c.bytesSent.Load(),
		BytesRecv:  c.bytesRecv.Load(),
		Broadcasts: c.broadcasts.Load(),
		ToMaster:   c.toMaster.Load(),
		FromMaster: c.fromMaster.Load(),
	}
}

func (c *counters) reset() {
	c.bytesSent.Store(0)
	c.bytesRecv.Store(0)
	c.broadcasts.Store(0)
	c.toMaster.Store(0)
	c.fromMaster.Store(0)
}

// The accounting below is shared by every Channel implementation so that the
// same protocol run produces identical stats regardless of transport.

func (c *counters) onBroadcast(n, m int) {
	c.bytesSent.Add(uint64((n - 1) * m))
	c.bytesRecv.Add(uint64((n - 1) * m))
	c.broadcasts.Inc()
}

func (c *counters) onGather(isMaster bool, own int, all [][]byte) {
	c.toMaster.Inc()
	if !isMaster {
		c.bytesSent.Add(uint64(own + lengthPrefixSize))
		return
	}
	var recv uint64
	for id, p := range all {
		if id == MasterID {
			continue
		}
		recv += uint64(lengthPrefixSize + len(p))
	}
	c.bytesRecv.Add(recv)
}

func (c *counters) onScatter(isMaster bool, seq [][]byte, received int) {
	c.fromMaster.Inc()
	if !isMaster {
		c.bytesRecv.Add(uint64(received))
		return
	}
	var sent uint64
	for id, p := range seq {
		if id == MasterID {
			continue
		}
		sent += uint64(len(p) + lengthPrefixSize)
	}
	c.bytesSent.Add(sent)
}
