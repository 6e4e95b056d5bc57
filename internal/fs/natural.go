package fs

import (
	"sort"

	"github.com/maruel/natural"
)

// CompareNatural compares two strings treating runs of digits as numbers,
// so that "2-two" sorts before "10-ten". It returns -1, 0 or +1.
func CompareNatural(a, b string) int {
	switch {
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	}
	return 0
}

// SortNatural sorts paths in place in natural order.
func SortNatural(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return natural.Less(paths[i], paths[j])
	})
}
