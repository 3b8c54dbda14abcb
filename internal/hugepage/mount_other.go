//go:build !linux

package hugepage

import "fmt"

// CheckMount always fails: hugetlbfs only exists on Linux.
func CheckMount(path string) error {
	return fmt.Errorf("%w: %s: hugetlbfs requires linux", ErrNotMounted, path)
}
