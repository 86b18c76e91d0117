package poolman

import (
	"errors"
	"log/slog"
)

type Config struct {
	// PoolGrowthChunks is the minimum number of chunks a new pool's backing
	// block is sized for when a size class grows. The heap's own size
	// rounding may fit more.
	PoolGrowthChunks int

	// HeaderGrowthRecords is the minimum number of pool records a header
	// slab is sized for, both at startup and when the header pool grows.
	HeaderGrowthRecords int

	// Guard enables the free-chunk integrity guard: freed chunk contents
	// are digested on Free and verified when the chunk is next handed out,
	// catching writes through stale pointers. Debug aid; costs a hash per
	// Free and a map entry per free chunk.
	Guard bool

	// Logger receives debug-level growth and consolidation events.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) Validate() error {
	var errs []error
	if c.PoolGrowthChunks < 1 {
		errs = append(errs, errors.New("invalid config: PoolGrowthChunks must be at least 1"))
	}
	if c.HeaderGrowthRecords < 1 {
		errs = append(errs, errors.New("invalid config: HeaderGrowthRecords must be at least 1"))
	}
	return errors.Join(errs...)
}

func DefaultConfig() Config {
	return Config{
		PoolGrowthChunks:    8, // Space at least for eight chunks per new pool.
		HeaderGrowthRecords: 4, // Space at least for four pool records per header slab.
	}
}
