package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/ocr"
	"github.com/topoom/casefeed/internal/pipeline"
)

// ExtractText runs OCR on the case's text capture and validates the
// result. The OCR model is nondeterministic, so a rejected result is an
// ordinary retryable failure.
type ExtractText struct {
	deps Deps
	log  *zap.Logger
}

// NewExtractText builds the extract-text-stage handler.
func NewExtractText(deps Deps) *ExtractText {
	return &ExtractText{deps: deps, log: deps.logger().Named("extract-text")}
}

// Handle processes one extract-text-queue message.
func (e *ExtractText) Handle(ctx context.Context, msg broker.Message) error {
	in, err := decode[pipeline.ExtractTextMessage](msg)
	if err != nil {
		return err
	}

	imageURL := e.captureURL(in)
	if imageURL == "" {
		return &pipeline.BusinessError{
			Class: pipeline.ClassOCRFailed,
			Err:   fmt.Errorf("no stored image to run ocr on"),
		}
	}

	text, err := e.deps.OCR.ExtractText(ctx, imageURL)
	if err != nil {
		return &pipeline.BusinessError{Class: pipeline.ClassOCRFailed, Err: err}
	}

	attempt := broker.DeliveryAttempt(ctx)
	if err := ocr.Validate(text, attempt); err != nil {
		e.log.Warn("ocr result rejected",
			zap.String("correlation_id", in.CorrelationID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	parsed := ocr.Parse(text)

	// Persist the fields now, not just at finalize. If finalize never
	// succeeds the case row still carries everything OCR recovered.
	if err := e.deps.Cases.UpdateCaseFields(ctx, in.CaseID, text, parsed); err != nil {
		return fmt.Errorf("failed to persist ocr fields on case %d: %w", in.CaseID, err)
	}

	e.log.Info("ocr text extracted",
		zap.String("correlation_id", in.CorrelationID),
		zap.Int64("case_id", in.CaseID),
		zap.String("person_name", parsed.PersonName))

	return e.deps.Producer.Publish(ctx, pipeline.FinalizeQueue, in.CorrelationID, pipeline.FinalizeMessage{
		CorrelationID: in.CorrelationID,
		CaseID:        in.CaseID,
		PostURL:       in.PostURL,
		Title:         in.Title,
		Text:          in.Text,
		Images:        in.Images,
		Contacts:      in.Contacts,
		LastImageKey:  in.LastImageKey,
		OCRText:       text,
		Parsed:        parsed,
		CreatedAt:     in.CreatedAt,
	})
}

// captureURL picks the image to OCR: the recorded last capture when it
// is still in the stored set, otherwise the last stored image.
func (e *ExtractText) captureURL(in pipeline.ExtractTextMessage) string {
	for _, img := range in.Images {
		if img.Key == in.LastImageKey {
			return img.URL
		}
	}
	if len(in.Images) > 0 {
		return in.Images[len(in.Images)-1].URL
	}
	return ""
}
