package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPageOffset(t *testing.T) {
	tests := []struct {
		name       string
		in         Pagination
		wantOffset int
		wantLimit  int
	}{
		{"defaults", Pagination{}, 0, DefaultPageSize},
		{"third page", Pagination{Page: 3, Limit: 20}, 40, 20},
		{"limit capped", Pagination{Page: 2, Limit: 500}, MaxPageSize, MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			offset, limit := p.GetPageOffset()
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func TestNewPageResultHasMore(t *testing.T) {
	p := Pagination{Page: 2, Limit: 10}
	p.GetPageOffset()
	assert.True(t, NewPageResult(nil, 21, p).HasMore)
	assert.False(t, NewPageResult(nil, 20, p).HasMore)
}
