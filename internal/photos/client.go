// Package photos lists candidate board background photos from the photo
// search API.
package photos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ytakahashi/boardsync/internal/models"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 30
)

// Lister returns one page of photos. Pages start at 1.
type Lister interface {
	ListPhotos(ctx context.Context, page, perPage int) ([]models.Photo, error)
}

type Client struct {
	baseURL   string
	accessKey string
	http      *http.Client
}

func NewClient(baseURL, accessKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type apiPhoto struct {
	ID   string `json:"id"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	URLs models.PhotoURLs `json:"urls"`
}

func (c *Client) ListPhotos(ctx context.Context, page, perPage int) ([]models.Photo, error) {
	page, perPage = Normalize(page, perPage)

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/photos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build photo request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photos: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read photos: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []apiPhoto
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode photos: %w", err)
	}
	out := make([]models.Photo, 0, len(raw))
	for _, p := range raw {
		out = append(out, models.Photo{ID: p.ID, Author: p.User.Name, URLs: p.URLs})
	}
	return out, nil
}

// Normalize applies the paging defaults and bounds.
func Normalize(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
