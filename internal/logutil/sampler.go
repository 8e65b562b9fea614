package logutil

import (
	"time"

	"github.com/rs/zerolog"
)

type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}

// Burst returns a logger letting through at most burst events per period,
// for logs emitted on a hot path.
func Burst(l zerolog.Logger, burst uint32, period time.Duration) zerolog.Logger {
	return l.Sample(&zerolog.BurstSampler{Burst: burst, Period: period})
}
