package shared

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// PageRequest is a 1-based page number with a page size.
type PageRequest struct {
	Page int
	Size int
}

// Clamp fills a missing page or size and caps Size at limit.
func (r PageRequest) Clamp(size, limit int) PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.Size <= 0:
		r.Size = size
	case r.Size > limit:
		r.Size = limit
	}
	return r
}

// Offset is the number of rows before the page.
func (r PageRequest) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.Size
}

// Pagination describes a page of a counted listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and perPage and derives the page count.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

// NormalizePage applies the listing defaults: 20 per page, at most 200.
func NormalizePage(page, perPage int) (int, int) {
	r := PageRequest{Page: page, Size: perPage}.Clamp(defaultPerPage, maxPerPage)
	return r.Page, r.Size
}

// Offset returns the row offset of the current page.
func (p Pagination) Offset() int {
	return PageRequest{Page: p.Page, Size: p.PerPage}.Offset()
}

// PageCursor describes an uncounted page read with one extra probe row.
type PageCursor struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// TrimProbe drops the probe row fetched past req.Size and reports the
// neighbouring pages. The returned slice is never nil.
func TrimProbe[T any](rows []T, req PageRequest) ([]T, PageCursor) {
	cur := PageCursor{Page: req.Page, PageSize: req.Size}
	if len(rows) > req.Size {
		rows = rows[:req.Size]
		cur.HasNext = true
		cur.NextPage = req.Page + 1
	}
	if req.Page > 1 {
		cur.PrevPage = req.Page - 1
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, cur
}
