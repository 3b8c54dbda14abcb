package hugepage

import "errors"

// DefaultMountPoint is where dpdk-hugepages.py mounts hugetlbfs.
const DefaultMountPoint = "/dev/hugepages"

// ErrNotMounted is returned by CheckMount when no hugetlbfs is mounted.
var ErrNotMounted = errors.New("hugepage: hugetlbfs not mounted")
