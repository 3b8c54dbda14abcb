//go:build linux

package hugepage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckMount verifies that path is a mounted hugetlbfs.
func CheckMount(path string) error {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotMounted, path, err)
	}
	if uint32(st.Type) != uint32(unix.HUGETLBFS_MAGIC) {
		return fmt.Errorf("%w: %s is not hugetlbfs (type %#x)", ErrNotMounted, path, uint32(st.Type))
	}
	return nil
}
