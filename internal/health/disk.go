package health

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
)

// DiskChecker checks free space on the filesystem holding the output file.
type DiskChecker struct {
	dir          string
	minFreeBytes uint64
	lastFree     atomic.Uint64
}

// NewDiskChecker watches the directory of outputPath. A minFreeBytes of zero
// only verifies the filesystem can be queried.
func NewDiskChecker(outputPath string, minFreeBytes uint64) *DiskChecker {
	return &DiskChecker{
		dir:          filepath.Dir(outputPath),
		minFreeBytes: minFreeBytes,
	}
}

func (d *DiskChecker) Name() string {
	return "disk"
}

func (d *DiskChecker) Check(ctx context.Context) error {
	free, err := freeBytes(d.dir)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", d.dir, err)
	}
	d.lastFree.Store(free)
	if free < d.minFreeBytes {
		return fmt.Errorf("only %d bytes free on %s, need %d", free, d.dir, d.minFreeBytes)
	}
	return nil
}

func (d *DiskChecker) Details() map[string]interface{} {
	return map[string]interface{}{
		"path":           d.dir,
		"free_bytes":     d.lastFree.Load(),
		"min_free_bytes": d.minFreeBytes,
	}
}
