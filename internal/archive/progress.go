package archive

import (
	"log/slog"
	"time"
)

// Progress receives cumulative byte counts while an archive or verify
// run streams content. done grows monotonically and reaches total on
// completion; total is 0 for an empty workload.
type Progress func(done, total int64)

// report invokes the callback if one is set.
func (p Progress) report(done, total int64) {
	if p != nil {
		p(done, total)
	}
}

// LogProgress returns a Progress that logs byte counts through logger
// at most once per interval. The final update (done == total) is
// always logged so runs end with a complete line.
func LogProgress(logger *slog.Logger, interval time.Duration) Progress {
	var last time.Time
	return func(done, total int64) {
		now := time.Now()
		if done < total && now.Sub(last) < interval {
			return
		}
		last = now

		args := []any{"done_bytes", done, "total_bytes", total}
		if total > 0 {
			args = append(args, "percent", done*100/total)
		}
		logger.Info("progress", args...)
	}
}
