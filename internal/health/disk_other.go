//go:build !unix

package health

import "os"

// freeBytes cannot query free space here; it only checks that dir exists and
// reports unlimited space.
func freeBytes(dir string) (uint64, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, err
	}
	return ^uint64(0), nil
}
