package entrycache

import "sync/atomic"

// Stats are cumulative counters since New (LiveKeys is instantaneous).
type Stats struct {
	Opens          uint64
	Writers        uint64
	Readers        uint64
	Queued         uint64
	Withdrawn      uint64
	Recreates      uint64
	WriterFailures uint64
	Restores       uint64
	SelfHeals      uint64
	PersistErrors  uint64
	LiveKeys       int
}

type counters struct {
	opens          atomic.Uint64
	writers        atomic.Uint64
	readers        atomic.Uint64
	queued         atomic.Uint64
	withdrawn      atomic.Uint64
	recreates      atomic.Uint64
	writerFailures atomic.Uint64
	restores       atomic.Uint64
	selfHeals      atomic.Uint64
	persistErrors  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Opens:          c.opens.Load(),
		Writers:        c.writers.Load(),
		Readers:        c.readers.Load(),
		Queued:         c.queued.Load(),
		Withdrawn:      c.withdrawn.Load(),
		Recreates:      c.recreates.Load(),
		WriterFailures: c.writerFailures.Load(),
		Restores:       c.restores.Load(),
		SelfHeals:      c.selfHeals.Load(),
		PersistErrors:  c.persistErrors.Load(),
	}
}
