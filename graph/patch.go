package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Upload stores data as name in the archive folder, replacing any file of
// the same name. The body is rebuilt on every retry.
func (c *Client) Upload(ctx context.Context, name string, data []byte) (Item, error) {
	buildReq := func(ctx context.Context) (*http.Request, error) {
		url := fmt.Sprintf("%s/root:/%s:/content", c.driveURL(), drivePath(c.cfg.ArchiveFolder+"/"+name))
		req, err := c.newRequest(ctx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}

	item, err := do[Item](ctx, c, buildReq)
	if err != nil {
		return Item{}, fmt.Errorf("uploading %s: %w", name, err)
	}
	return item, nil
}

// PatchFields sets list columns on an uploaded item.
func (c *Client) PatchFields(ctx context.Context, itemID string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	buildReq := func(ctx context.Context) (*http.Request, error) {
		url := fmt.Sprintf("%s/items/%s/listItem/fields", c.driveURL(), itemID)
		req, err := c.newRequest(ctx, http.MethodPatch, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	_, err = do[map[string]any](ctx, c, buildReq)
	return err
}

// Archive uploads a generated document and tags it with its course and
// period. Tagging failures are logged, not returned.
func (c *Client) Archive(ctx context.Context, name string, data []byte, fields map[string]any) (Item, error) {
	if c.cfg.ArchiveFolder == "" {
		return Item{}, fmt.Errorf("no archive folder configured")
	}
	item, err := c.Upload(ctx, name, data)
	if err != nil {
		return Item{}, err
	}
	if len(fields) > 0 {
		if err := c.PatchFields(ctx, item.ID, fields); err != nil {
			c.logger.Warn("could not tag archived document", "name", name, "item", item.ID, "err", err)
		}
	}
	c.logger.Info("document archived", "name", name, "item", item.ID)
	return item, nil
}
