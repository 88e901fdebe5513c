package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/JA50N14/course_reports/internal/fault"
)

// GetFile downloads an item's content. An interrupted transfer resumes
// with a Range request from the last byte received.
func (c *Client) GetFile(ctx context.Context, itemID string) ([]byte, error) {
	var buf bytes.Buffer

	for attempt := 0; attempt < maxRetries; attempt++ {
		written := int64(buf.Len())
		req, err := c.createGetFileRequest(ctx, itemID, written)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("context error: %w", ctx.Err())
			}
			c.logger.Warn("download interrupted", "item", itemID, "attempt", attempt+1, "err", err)
			continue
		}

		var copyErr error
		fatal := false

		func() {
			defer resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				if written > 0 {
					// the server ignored Range: start over
					buf.Reset()
				}
				_, copyErr = io.Copy(&buf, resp.Body)

			case http.StatusPartialContent:
				_, copyErr = io.Copy(&buf, resp.Body)

			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				err = fmt.Errorf("download failed: %s", resp.Status)
				fatal = true

			case http.StatusRequestedRangeNotSatisfiable:
				err = fmt.Errorf("range not satisfiable at byte %d", written)
				fatal = true

			default:
				if resp.StatusCode >= 500 {
					err = fmt.Errorf("server error: %s", resp.Status)
					return
				}
				err = fmt.Errorf("unexpected status: %s", resp.Status)
				fatal = true
			}
		}()

		if fatal {
			return nil, err
		}

		if err == nil && copyErr == nil {
			return buf.Bytes(), nil
		}
		if err := c.sleep(ctx, backoff(attempt+1)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts (itemID=%s)", maxRetries, itemID)
}

func (c *Client) createGetFileRequest(ctx context.Context, itemID string, written int64) (*http.Request, error) {
	url := fmt.Sprintf("%s/items/%s/content", c.driveURL(), itemID)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if written > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", written))
	}
	return req, nil
}

// Template fetches a template by file name from the configured template
// folder.
func (c *Client) Template(ctx context.Context, name string) ([]byte, error) {
	item, err := c.FindFile(ctx, c.cfg.TemplateFolder, name)
	if err != nil {
		return nil, fault.New(fault.External, name, err)
	}
	data, err := c.GetFile(ctx, item.ID)
	if err != nil {
		return nil, fault.New(fault.External, name, err)
	}
	c.logger.Info("template fetched from drive", "name", name, "bytes", len(data))
	return data, nil
}
