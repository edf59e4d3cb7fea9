package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const MaxPageSize = 200

// PaginationParams is a limit/offset window. A zero Limit means "everything".
type PaginationParams struct {
	Limit  int
	Offset int
}

// GetPaginationParams reads optional limit/offset query parameters. Without a
// limit the full history is returned.
func GetPaginationParams(c echo.Context) PaginationParams {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	if limit < 0 {
		limit = 0
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
