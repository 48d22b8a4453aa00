package utils

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination 分页请求参数，从 query 绑定
type Pagination struct {
	Page  int `json:"page" form:"page" binding:"omitempty,min=1"`
	Limit int `json:"limit" form:"limit" binding:"omitempty,min=1"`
}

// PageResult 分页响应结果
type PageResult struct {
	List    interface{} `json:"list"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	HasMore bool        `json:"hasMore"`
}

// GetPageOffset 规范化页码并返回 offset/limit，limit 超过上限时截断
func (p *Pagination) GetPageOffset() (int, int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return (p.Page - 1) * p.Limit, p.Limit
}

// NewPageResult 需在 GetPageOffset 之后调用
func NewPageResult(list interface{}, total int64, p Pagination) *PageResult {
	return &PageResult{
		List:    list,
		Total:   total,
		Page:    p.Page,
		Limit:   p.Limit,
		HasMore: int64(p.Page*p.Limit) < total,
	}
}
