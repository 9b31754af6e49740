// Package page normalizes list pagination.
package page

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Clamp applies the default page size to a non-positive limit, caps it at
// MaxLimit and floors offset at zero.
func Clamp(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
