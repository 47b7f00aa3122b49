package consumer

import (
	"context"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/pipeline"
)

// Classify assigns a kind to every staged image that does not have one
// yet.
type Classify struct {
	deps Deps
	log  *zap.Logger
}

// NewClassify builds the classify-stage handler.
func NewClassify(deps Deps) *Classify {
	return &Classify{deps: deps, log: deps.logger().Named("classify")}
}

// Handle processes one classify-queue message.
func (c *Classify) Handle(ctx context.Context, msg broker.Message) error {
	in, err := decode[pipeline.ClassifyMessage](msg)
	if err != nil {
		return err
	}

	images := make([]pipeline.CrawledImage, len(in.Images))
	copy(images, in.Images)

	for i := range images {
		if images[i].Kind != "" {
			continue
		}
		kind, err := c.deps.Classifier.Classify(ctx, images[i].TempPath)
		if err != nil {
			return &pipeline.BusinessError{Class: pipeline.ClassClassifyFailed, Err: err}
		}
		images[i].Kind = kind
	}

	c.log.Info("images classified",
		zap.String("correlation_id", in.CorrelationID),
		zap.Int64("case_id", in.CaseID),
		zap.Int("images", len(images)))

	return c.deps.Producer.Publish(ctx, pipeline.StoreQueue, in.CorrelationID, pipeline.StoreMessage{
		CorrelationID: in.CorrelationID,
		CaseID:        in.CaseID,
		PostURL:       in.PostURL,
		Title:         in.Title,
		Text:          in.Text,
		Images:        images,
		Contacts:      in.Contacts,
		CreatedAt:     in.CreatedAt,
	})
}
