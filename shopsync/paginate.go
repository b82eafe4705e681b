package shopsync

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

const defaultPageSize = 250

// parseNextPageInfo extracts the next-page continuation token from a
// Link-style header of the form
//
//	<https://host/path?page_info=TOKEN&limit=250>; rel="next"
//
// possibly alongside a rel="previous" entry. Returns "" when no next relation
// is present, which terminates pagination.
func parseNextPageInfo(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		if token := u.Query().Get("page_info"); token != "" {
			return token
		}
	}
	return ""
}

// fetchAllPages walks every page of the resource and accumulates the records
// in upstream order. The first request carries the caller's filter params;
// continuation requests carry only limit and page_info, since the upstream
// rejects filters alongside a continuation token.
func fetchAllPages(ctx context.Context, client *shopifyClient, resource string, filters url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	pageInfo := ""

	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(defaultPageSize))
		if pageInfo != "" {
			params.Set("page_info", pageInfo)
		} else {
			for key, values := range filters {
				for _, value := range values {
					params.Add(key, value)
				}
			}
		}

		records, linkHeader, err := client.getPage(ctx, resource, params)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)

		pageInfo = parseNextPageInfo(linkHeader)
		if pageInfo == "" {
			return all, nil
		}
	}
}
