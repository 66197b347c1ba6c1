package ytvideodata

import (
	"context"
	"fmt"
	"net/http"
)

var (
	ErrVideoNotFound      = fmt.Errorf("video not found")
	ErrVideoNotEmbeddable = fmt.Errorf("video is not embeddable")
)

func (c *Client) getVideoWithEmbed(ctx context.Context, videoID string) (*VideoData, error) {
	var result VideoData
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("url", "https://www.youtube.com/watch?v="+videoID).
		SetQueryParam("format", "json").
		SetResult(&result).
		Get(c.oembedURL)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		return nil, ErrVideoNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrVideoNotEmbeddable
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	return &result, nil
}
