package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Params is a validated page request
type Params struct {
	Page int
	Size int
}

// Page is the response envelope for paginated lists
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Pages int   `json:"pages"`
}

// New validates page >= 1 and 1 <= size <= MaxSize.
func New(page, size int) (Params, error) {
	if page < 1 {
		return Params{}, apperr.Invalid("page", "must be at least 1")
	}
	if size < 1 || size > MaxSize {
		return Params{}, apperr.Invalid("size", "must be between 1 and 100")
	}
	return Params{Page: page, Size: size}, nil
}

// FromQuery reads ?page= and ?size= with defaults 1 and DefaultSize.
func FromQuery(c *gin.Context) (Params, error) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return Params{}, apperr.Invalid("page", "must be an integer")
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(DefaultSize)))
	if err != nil {
		return Params{}, apperr.Invalid("size", "must be an integer")
	}
	return New(page, size)
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Size
}

// Scope applies LIMIT/OFFSET to a query.
func (p Params) Scope(db *gorm.DB) *gorm.DB {
	return db.Offset(p.Offset()).Limit(p.Size)
}

// Pages returns ceil(total/size).
func Pages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// NewPage wraps items in the response envelope. A nil slice is rendered as
// an empty list.
func NewPage[T any](items []T, total int64, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items: items,
		Total: total,
		Page:  p.Page,
		Size:  p.Size,
		Pages: Pages(total, p.Size),
	}
}

// Map converts a page of one type into a page of another.
func Map[T, U any](in Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(in.Items))
	for i, item := range in.Items {
		out[i] = fn(item)
	}
	return Page[U]{Items: out, Total: in.Total, Page: in.Page, Size: in.Size, Pages: in.Pages}
}
