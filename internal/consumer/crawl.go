package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/store"
)

// Crawl fetches the post, creates the skeleton case row, and hands the
// raw material to the classify stage.
type Crawl struct {
	deps Deps
	log  *zap.Logger
}

// NewCrawl builds the crawl-stage handler.
func NewCrawl(deps Deps) *Crawl {
	return &Crawl{deps: deps, log: deps.logger().Named("crawl")}
}

// Handle processes one crawl-queue message.
func (c *Crawl) Handle(ctx context.Context, msg broker.Message) error {
	in, err := decode[pipeline.CrawlMessage](msg)
	if err != nil {
		return err
	}

	post, err := c.deps.Crawler.FetchPost(ctx, in.PostURL)
	if err != nil {
		return &pipeline.BusinessError{Class: pipeline.ClassCrawlFailed, Err: err}
	}

	title := post.Title
	if title == "" {
		title = in.Title
	}

	caseID, err := c.deps.Cases.CreateCase(ctx, store.CaseSeed{
		CorrelationID: in.CorrelationID,
		PostURL:       in.PostURL,
		Title:         title,
		CreatedAt:     in.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}

	c.log.Info("post crawled",
		zap.String("correlation_id", in.CorrelationID),
		zap.Int64("case_id", caseID),
		zap.Int("images", len(post.Images)),
		zap.Int("contacts", len(post.Contacts)))

	return c.deps.Producer.Publish(ctx, pipeline.ClassifyQueue, in.CorrelationID, pipeline.ClassifyMessage{
		CorrelationID: in.CorrelationID,
		CaseID:        caseID,
		PostURL:       in.PostURL,
		Title:         title,
		Text:          post.Text,
		Images:        post.Images,
		Contacts:      post.Contacts,
		CreatedAt:     in.CreatedAt,
	})
}
