package shared

const (
	// DefaultPageLimit applies when a listing request omits a limit.
	DefaultPageLimit = 50
	// MaxPageLimit caps listing requests.
	MaxPageLimit = 500
)

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

// NewPage normalises limit and offset.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
