package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// EvictionFailure 记录一个无法处理的文件及原因。
type EvictionFailure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// EvictionReport 汇总一次按龄淘汰的结果。
type EvictionReport struct {
	Scanned  int               `json:"scanned"`
	Removed  int               `json:"removed"`
	Failed   []EvictionFailure `json:"failed,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Err 将所有失败合并为一个 error，没有失败时为 nil。
func (r EvictionReport) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// RemoveOutdatedDiskCache 删除修改时间早于 now-MaxCacheAge 的磁盘条目。
// 单个文件失败会被记录并跳过，不会中断整次扫描；MaxCacheAge<=0 时直接返回。
// 返回的 error 是所有单文件失败的合并，报告中的 Removed 仍然有效。
func (s *Store) RemoveOutdatedDiskCache(ctx context.Context) (EvictionReport, error) {
	maxAge := s.MaxCacheAge()
	if maxAge <= 0 {
		return EvictionReport{}, nil
	}

	var report EvictionReport
	err := s.writer.do(ctx, func() error {
		report = s.evictOlderThan(ctx, maxAge)
		return nil
	})
	if err != nil {
		return report, err
	}

	s.metrics.EvictedFiles(s.namespace, report.Removed)
	fields := logrus.Fields{
		"action":    "evict",
		"namespace": s.namespace,
		"scanned":   report.Scanned,
		"removed":   report.Removed,
		"failed":    len(report.Failed),
	}
	if len(report.Failed) > 0 {
		s.logger.WithFields(fields).Warn("evict_done")
	} else {
		s.logger.WithFields(fields).Debug("evict_done")
	}
	return report, report.Err()
}

func (s *Store) evictOlderThan(ctx context.Context, maxAge time.Duration) EvictionReport {
	started := time.Now()
	now := s.now()
	var report EvictionReport

	fail := func(path string, err error) {
		report.Failed = append(report.Failed, EvictionFailure{
			Path: path,
			Err:  &DiskError{Op: "evict", Path: path, Err: err},
		})
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":    "evict",
			"namespace": s.namespace,
			"path":      path,
		}).Warn("evict_failed_entry")
	}

	walkErr := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == s.dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			if !errors.Is(err, fs.ErrNotExist) {
				fail(path, err)
			}
			if d != nil && d.IsDir() && path != s.dir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		report.Scanned++
		info, err := d.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				fail(path, err)
			}
			return nil
		}
		if now.Sub(info.ModTime()) <= maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				fail(path, err)
			}
			return nil
		}
		report.Removed++
		s.unmarkStored(d.Name())
		return nil
	})
	if walkErr != nil {
		fail(s.dir, walkErr)
	}

	report.Duration = time.Since(started)
	return report
}
