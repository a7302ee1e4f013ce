package pool

// Stats is a point-in-time snapshot of pool occupancy, for diagnostics
// and tests. Classes and buckets are sampled one at a time, so a
// snapshot taken under concurrent use is internally consistent per tier
// but not across tiers.
type Stats struct {
	PageSize  int `json:"page_size"`
	BlockSize int `json:"block_size"`
	PinQuota  int `json:"pin_quota"`

	FixedClasses []FixedClassStats `json:"fixed_classes"`
	Large        LargePoolStats    `json:"large"`
}

// FixedClassStats describes one fixed-block size class.
type FixedClassStats struct {
	BlockSize  int `json:"block_size"`
	BlockCount int `json:"block_count"`
	FreeBlocks int `json:"free_blocks"`
}

// LargePoolStats describes the large tier.
type LargePoolStats struct {
	Buckets     int  `json:"buckets"`
	FullBuckets int  `json:"full_buckets"`
	CachedEmpty bool `json:"cached_empty"`
	TotalBlocks int  `json:"total_blocks"`
	FreeBlocks  int  `json:"free_blocks"`
}

// Stats snapshots the pool.
func (p *Pool) Stats() Stats {
	s := Stats{
		PageSize:     p.provider.PageSize(),
		BlockSize:    blockUnit,
		PinQuota:     p.provider.Quota(),
		FixedClasses: make([]FixedClassStats, len(p.fixed)),
	}

	for i, b := range p.fixed {
		p.fixedMu[i].Lock()
		s.FixedClasses[i] = FixedClassStats{
			BlockSize:  b.blockSize,
			BlockCount: b.blockCount,
			FreeBlocks: b.freeBlocks,
		}
		p.fixedMu[i].Unlock()
	}

	s.Large = p.large.stats()
	return s
}
