package utils

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize is the default number of items per page when not specified
	DefaultPageSize = 20
	// MaxPageSize is the maximum allowed page size to prevent resource exhaustion
	MaxPageSize = 100
	// MinPageSize is the minimum page size
	MinPageSize = 1
)

// PageParams holds pagination parameters extracted from an HTTP request.
type PageParams struct {
	Page     int // 1-based page number
	PageSize int
	Offset   int // 0-based
	Limit    int
}

// PageMeta holds pagination metadata to be included in API responses.
type PageMeta struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"page_size"`
	TotalPages   int   `json:"total_pages"`
	TotalItems   int64 `json:"total_items"`
	HasPrevious  bool  `json:"has_previous"`
	HasNext      bool  `json:"has_next"`
	PreviousPage *int  `json:"previous_page,omitempty"`
	NextPage     *int  `json:"next_page,omitempty"`
}

// PaginatedResponse wraps data with pagination metadata for API responses.
type PaginatedResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Pagination PageMeta    `json:"pagination"`
}

// ParsePageParams extracts and validates pagination parameters from an HTTP request.
//
// Query parameters:
//   - page: 1-based page number (default: 1, min: 1)
//   - page_size: items per page (default: 20, min: 1, max: 100)
//
// Example:
//
//	params := utils.ParsePageParams(r)
//	page := utils.Paginate(summaries, params)
//	utils.RespondWithJSON(w, r, http.StatusOK, utils.NewPaginatedResponse(page, params, int64(len(summaries))))
func ParsePageParams(r *http.Request) PageParams {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", DefaultPageSize)

	if page < 1 {
		page = 1
	}
	if pageSize < MinPageSize {
		pageSize = MinPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return PageParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	}
}

// CalculateMeta calculates pagination metadata based on the total number of items.
func (p PageParams) CalculateMeta(totalItems int64) PageMeta {
	totalPages := int((totalItems + int64(p.PageSize) - 1) / int64(p.PageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	meta := PageMeta{
		Page:        p.Page,
		PageSize:    p.PageSize,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		HasPrevious: p.Page > 1,
		HasNext:     p.Page < totalPages,
	}

	if meta.HasPrevious {
		prev := p.Page - 1
		meta.PreviousPage = &prev
	}
	if meta.HasNext {
		next := p.Page + 1
		meta.NextPage = &next
	}

	return meta
}

// NewPaginatedResponse combines a page of data with its metadata.
func NewPaginatedResponse(data interface{}, params PageParams, totalItems int64) PaginatedResponse {
	return PaginatedResponse{
		Success:    true,
		Data:       data,
		Pagination: params.CalculateMeta(totalItems),
	}
}

// Paginate returns the window of items selected by p. Pages past the end
// yield an empty, non-nil slice.
func Paginate[T any](items []T, p PageParams) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

// parseIntParam safely parses an integer query parameter with a default fallback.
func parseIntParam(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
