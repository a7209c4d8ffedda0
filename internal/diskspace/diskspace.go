// Package diskspace reports free/total space for the volume backing a path,
// and implements the archive manager's capacity-scaled backup-size cap.
package diskspace

import (
	"golang.org/x/sys/unix"
)

const gib = 1 << 30

// Space holds free and total bytes for a filesystem.
type Space struct {
	FreeBytes  uint64
	TotalBytes uint64
}

// FreeGB returns free space in whole gigabytes (truncated).
func (s Space) FreeGB() uint64 { return s.FreeBytes / gib }

// TotalGB returns total capacity in whole gigabytes (truncated).
func (s Space) TotalGB() uint64 { return s.TotalBytes / gib }

// Stat returns free/total space for the filesystem containing path.
func Stat(path string) (Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Space{}, err
	}
	bsize := uint64(st.Bsize)
	return Space{
		FreeBytes:  st.Bavail * bsize,
		TotalBytes: st.Blocks * bsize,
	}, nil
}

// SizeCapGB returns the capacity-scaled cap on archive content size, in
// gigabytes, for a volume with the given total capacity: <50GB -> 5,
// <100 -> 10, <200 -> 20, >=200 -> 30.
func SizeCapGB(totalGB uint64) uint64 {
	switch {
	case totalGB < 50:
		return 5
	case totalGB < 100:
		return 10
	case totalGB < 200:
		return 20
	default:
		return 30
	}
}
