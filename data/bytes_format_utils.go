package data

import "fmt"

const (
	_ = 1 << (10 * iota)
	kib
	mib
	gib
	tib
)

// FormatBytes formats a byte count as an easily human parsable string.
func FormatBytes[T int64 | uint64 | int](b T) string {
	f := float64(b)
	switch {
	case f > tib:
		return fmt.Sprintf("%.2f TB", f/tib)
	case f > gib:
		return fmt.Sprintf("%.2f GB", f/gib)
	case f > mib:
		return fmt.Sprintf("%.2f MB", f/mib)
	case f > kib:
		return fmt.Sprintf("%.2f KB", f/kib)
	default:
		return fmt.Sprintf("%d Bytes", b)
	}
}
