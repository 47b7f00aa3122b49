package extern

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/pipeline"
)

// CrawlerConfig tunes the bulletin-board crawler. The selectors default
// to the police bulletin board layout.
type CrawlerConfig struct {
	UserAgent       string
	RequestTimeout  time.Duration
	TempDir         string
	TitleSelector   string
	ContentSelector string
	ImageSelector   string
}

func (c CrawlerConfig) withDefaults() CrawlerConfig {
	if c.UserAgent == "" {
		c.UserAgent = "casefeed/1.0"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.TitleSelector == "" {
		c.TitleSelector = "div.board-view h4.title"
	}
	if c.ContentSelector == "" {
		c.ContentSelector = "div.board-view div.content"
	}
	if c.ImageSelector == "" {
		c.ImageSelector = "div.board-view div.content img[src]"
	}
	return c
}

// contactRe matches an organization name followed by a Korean phone
// number anywhere in the post body.
var contactRe = regexp.MustCompile(`([가-힣()]{2,20})\s*[:：]?\s*(0\d{1,2}[-.\s]?\d{3,4}[-.\s]?\d{4})`)

// CollyPostCrawler fetches posts with a Colly collector and stages their
// images under a temp directory for the classify and store stages.
type CollyPostCrawler struct {
	cfg       CrawlerConfig
	collector *colly.Collector
	client    *http.Client
	log       *zap.Logger
}

// NewCollyPostCrawler constructs a configured Colly-based post crawler.
func NewCollyPostCrawler(cfg CrawlerConfig, log *zap.Logger) (*CollyPostCrawler, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.SetRequestTimeout(cfg.RequestTimeout)

	if err := base.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2}); err != nil {
		return nil, fmt.Errorf("failed to set crawler limits: %w", err)
	}

	return &CollyPostCrawler{
		cfg:       cfg,
		collector: base,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		log:       log,
	}, nil
}

// FetchPost retrieves one post, extracts its title, body text, contact
// lines, and image URLs, then downloads each image to a temp file. The
// returned image paths are ephemeral; callers own their cleanup.
func (c *CollyPostCrawler) FetchPost(ctx context.Context, postURL string) (CrawledPost, error) {
	collector := c.collector.Clone()

	var (
		post      CrawledPost
		imageURLs []string
		fetchErr  error
	)

	collector.OnHTML(c.cfg.TitleSelector, func(e *colly.HTMLElement) {
		if post.Title == "" {
			post.Title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML(c.cfg.ContentSelector, func(e *colly.HTMLElement) {
		if post.Text == "" {
			post.Text = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML(c.cfg.ImageSelector, func(e *colly.HTMLElement) {
		if src := e.Request.AbsoluteURL(e.Attr("src")); src != "" {
			imageURLs = append(imageURLs, src)
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		fetchErr = err
	})

	if err := collector.Visit(postURL); err != nil {
		return CrawledPost{}, fmt.Errorf("failed to visit post %q: %w", postURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return CrawledPost{}, err
	}
	if fetchErr != nil {
		return CrawledPost{}, fmt.Errorf("failed to fetch post %q: %w", postURL, fetchErr)
	}
	if post.Title == "" && post.Text == "" && len(imageURLs) == 0 {
		return CrawledPost{}, fmt.Errorf("post %q matched none of the configured selectors", postURL)
	}

	post.Contacts = extractContacts(post.Text)

	for _, src := range imageURLs {
		tempPath, err := c.download(ctx, src)
		if err != nil {
			c.log.Warn("failed to stage image",
				zap.String("image_url", src),
				zap.Error(err))
			continue
		}
		post.Images = append(post.Images, pipeline.CrawledImage{TempPath: tempPath})
	}
	if len(imageURLs) > 0 && len(post.Images) == 0 {
		return CrawledPost{}, fmt.Errorf("failed to stage any of %d images from %q", len(imageURLs), postURL)
	}

	return post, nil
}

// download stages one image into the temp directory.
func (c *CollyPostCrawler) download(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close image response body", zap.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	ext := ""
	if u, err := url.Parse(src); err == nil {
		ext = path.Ext(u.Path)
	}
	pattern := "casefeed-*" + ext
	f, err := os.CreateTemp(c.cfg.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write image to %q: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close %q: %w", f.Name(), err)
	}
	return f.Name(), nil
}

// extractContacts pulls organization/phone pairs out of the post body,
// deduplicated by phone number.
func extractContacts(text string) []pipeline.Contact {
	var out []pipeline.Contact
	seen := make(map[string]struct{})
	for _, m := range contactRe.FindAllStringSubmatch(text, -1) {
		phone := strings.NewReplacer(".", "-", " ", "-").Replace(m[2])
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		out = append(out, pipeline.Contact{Organization: m[1], PhoneNumber: phone})
	}
	return out
}
