package shared

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Page     int
	PageSize int
}

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func (p Page) Meta(total int64) PageMeta {
	pages := int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	return PageMeta{Page: p.Page, PageSize: p.PageSize, Total: total, TotalPages: pages}
}
