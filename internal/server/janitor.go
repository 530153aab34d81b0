package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// EvictAll 对每个命名空间执行一次按龄淘汰，单个命名空间失败不影响其它命名空间。
func (r *NamespaceRegistry) EvictAll(ctx context.Context) (removed int, err error) {
	if r == nil {
		return 0, nil
	}
	for _, route := range r.ordered {
		if ctx.Err() != nil {
			return removed, multierr.Append(err, ctx.Err())
		}
		report, evictErr := route.Assets.RemoveOutdatedDiskCache(ctx)
		removed += report.Removed
		err = multierr.Append(err, evictErr)
	}
	return removed, err
}

// RunJanitor 每隔 interval 调用一次 EvictAll，直到 ctx 结束；interval<=0 时立即返回。
func RunJanitor(ctx context.Context, registry *NamespaceRegistry, interval time.Duration, logger *logrus.Logger) {
	if interval <= 0 || registry == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := registry.EvictAll(ctx)
			fields := logrus.Fields{
				"action":  "janitor",
				"removed": removed,
			}
			if err != nil && ctx.Err() == nil {
				logger.WithError(err).WithFields(fields).Warn("janitor_evict_failed")
				continue
			}
			logger.WithFields(fields).Debug("janitor_evict_done")
		}
	}
}
