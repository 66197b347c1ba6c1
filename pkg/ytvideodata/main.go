package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultOEmbedURL = "https://www.youtube.com/oembed"
	DefaultPageURL   = "https://youtu.be/"
	DefaultTimeout   = 5 * time.Second
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Config struct {
	OEmbedURL string
	PageURL   string
	Timeout   time.Duration
}

type Client struct {
	httpClient *resty.Client
	oembedURL  string
	pageURL    string
}

func NewClient(cfg *Config) *Client {
	c := Client{
		oembedURL: cfg.OEmbedURL,
		pageURL:   cfg.PageURL,
	}
	if c.oembedURL == "" {
		c.oembedURL = DefaultOEmbedURL
	}
	if c.pageURL == "" {
		c.pageURL = DefaultPageURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.httpClient = resty.New().SetTimeout(timeout)

	return &c
}

// ThumbnailURL is the standard thumbnail location of a video.
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
}

// Get resolves video metadata through oEmbed, falling back to the watch page
// for videos that are not embeddable.
func (c *Client) Get(ctx context.Context, videoID string) (*VideoData, error) {
	videoData, err := c.getVideoWithEmbed(ctx, videoID)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	if videoData.ThumbnailUrl == "" {
		videoData.ThumbnailUrl = ThumbnailURL(videoID)
	}

	return videoData, nil
}
