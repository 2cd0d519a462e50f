package domain

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListOptions selects one page of a listing.
type ListOptions struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

// Normalize clamps the page to >= 1 and the limit to 1..MaxPageSize.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	return o
}

// Offset is the number of rows to skip for the normalized page.
func (o ListOptions) Offset() int {
	n := o.Normalize()
	return (n.Page - 1) * n.Limit
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes pagination metadata for total rows.
func NewPagination(total int64, opts ListOptions) Pagination {
	n := opts.Normalize()
	pages := int((total + int64(n.Limit) - 1) / int64(n.Limit))
	return Pagination{Total: total, Page: n.Page, Limit: n.Limit, TotalPages: pages}
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPage wraps items with pagination metadata, never returning a nil slice.
func NewPage[T any](items []T, total int64, opts ListOptions) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: NewPagination(total, opts)}
}
