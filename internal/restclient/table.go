package restclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dbsmedya/goapidiscovery/internal/encquery"
)

// TableAPIPrefix is the path prefix of the Table API.
const TableAPIPrefix = "/api/now/table/"

const defaultPageSize = 1000

// ListOptions controls a Table API listing.
type ListOptions struct {
	Fields     []string
	Query      string
	PageSize   int    // records per request; defaults to 1000
	MaxRecords int    // stop after this many records; 0 means no limit
	OrderBy    string // sort field; keeps offset pages stable
}

// TablePath returns the Table API collection path for table.
func TablePath(table string) string {
	return TableAPIPrefix + table
}

// ListRecords reads records from a table, following limit/offset pagination
// until a short page is returned or MaxRecords is reached.
func (c *Client) ListRecords(ctx context.Context, table string, opts ListOptions) ([]map[string]interface{}, error) {
	if err := encquery.ValidateName(table); err != nil {
		return nil, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if opts.MaxRecords > 0 && opts.MaxRecords < pageSize {
		pageSize = opts.MaxRecords
	}

	query := opts.Query
	if opts.OrderBy != "" {
		if query != "" {
			query += "^"
		}
		query += encquery.New().OrderBy(opts.OrderBy).String()
	}

	var records []map[string]interface{}
	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Set("sysparm_limit", strconv.Itoa(pageSize))
		params.Set("sysparm_offset", strconv.Itoa(offset))
		params.Set("sysparm_exclude_reference_link", "true")
		if len(opts.Fields) > 0 {
			params.Set("sysparm_fields", strings.Join(opts.Fields, ","))
		}
		if query != "" {
			params.Set("sysparm_query", query)
		}

		resp, err := c.Get(ctx, TablePath(table), params)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Result []map[string]interface{} `json:"result"`
		}
		if err := resp.JSON(&payload); err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}

		records = append(records, payload.Result...)

		if opts.MaxRecords > 0 && len(records) >= opts.MaxRecords {
			return records[:opts.MaxRecords], nil
		}
		if len(payload.Result) < pageSize {
			return records, nil
		}
	}
}
