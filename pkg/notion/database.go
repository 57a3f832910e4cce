package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// ErrNoMatch is returned by FindFirst when no page matches the filter.
var ErrNoMatch = eris.New("notion: no matching page")

// QueryAll fetches every page of a database query. The next page is
// requested while the current one is being appended.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	build := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var pending <-chan result

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error
		if pending != nil {
			r := <-pending
			resp, err = r.resp, r.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, build(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}

		ch := make(chan result, 1)
		pending = ch
		next := build(resp.NextCursor)
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- result{resp: r, err: e}
		}()
	}

	return all, nil
}

// QueryByStatus fetches every page whose Status property equals status.
func QueryByStatus(ctx context.Context, c Client, dbID, status string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status:   &notionapi.StatusFilterCondition{Equals: status},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query pages with status %s", status)
	}
	return pages, nil
}

// FindFirst returns the first page whose rich-text property equals value.
func FindFirst(ctx context.Context, c Client, dbID, property, value string) (notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
		PageSize: 1,
	})
	if err != nil {
		return notionapi.Page{}, eris.Wrapf(err, "notion: find %s", property)
	}
	if len(resp.Results) == 0 {
		return notionapi.Page{}, ErrNoMatch
	}
	return resp.Results[0], nil
}

// SetStatus moves a page to status and stamps the given date property.
func SetStatus(ctx context.Context, c Client, pageID, status, dateProperty string, at time.Time) error {
	props := notionapi.Properties{
		"Status": notionapi.StatusProperty{Status: notionapi.Status{Name: status}},
	}
	if dateProperty != "" {
		d := notionapi.Date(at)
		props[dateProperty] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: set page %s to %s", pageID, status))
	}
	return nil
}
