package graph

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Item struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"lastModifiedDateTime"`
	File     *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
}

func (i Item) IsFile() bool {
	return i.File != nil
}

// drivePath escapes a slash-separated folder path for a root:/path: URL.
func drivePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (c *Client) driveURL() string {
	if c.cfg.SiteID != "" {
		return fmt.Sprintf("%s/sites/%s/drives/%s", c.baseURL, c.cfg.SiteID, c.cfg.DriveID)
	}
	return fmt.Sprintf("%s/drives/%s", c.baseURL, c.cfg.DriveID)
}

// ListFolder returns the children of a folder given by its path from the
// drive root.
func (c *Client) ListFolder(ctx context.Context, folder string) ([]Item, error) {
	buildReq := func(ctx context.Context) (*http.Request, error) {
		url := fmt.Sprintf("%s/root:/%s:/children", c.driveURL(), drivePath(folder))
		return c.newRequest(ctx, http.MethodGet, url, nil)
	}

	result, err := listAll[Item](ctx, c, buildReq)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindFile looks a file up by name, ignoring case, in a folder.
func (c *Client) FindFile(ctx context.Context, folder, name string) (Item, error) {
	items, err := c.ListFolder(ctx, folder)
	if err != nil {
		return Item{}, err
	}
	for _, it := range items {
		if it.IsFile() && strings.EqualFold(it.Name, name) {
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("%s in %s: %w", name, folder, fs.ErrNotExist)
}
