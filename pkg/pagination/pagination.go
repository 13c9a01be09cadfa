package pagination

const (
	// DefaultPageSize is the standard page size when a size is not provided.
	DefaultPageSize = 25
	// MaxPageSize caps how many rows any page can request.
	MaxPageSize = 100
)

// Params holds page pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
}

// Normalize enforces a 1-based page and the default and maximum page sizes.
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	p.PageSize = NormalizePageSize(p.PageSize)
	return p
}

// Offset is the zero-based row offset of the page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// NormalizePageSize enforces the configured default and maximum sizes.
func NormalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Meta describes the page returned to the caller.
type Meta struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalCount  int64 `json:"total_count"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// NewMeta builds page metadata for total rows.
func NewMeta(p Params, total int64) Meta {
	n := p.Normalize()
	pages := int((total + int64(n.PageSize) - 1) / int64(n.PageSize))
	return Meta{
		Page:        n.Page,
		PageSize:    n.PageSize,
		TotalCount:  total,
		TotalPages:  pages,
		HasNext:     n.Page < pages,
		HasPrevious: n.Page > 1,
	}
}

// Slice returns the page window of items held in memory.
func Slice[T any](items []T, p Params) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Normalize().PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
