package consumer

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/pipeline"
)

// Store uploads the staged images to the blob store and picks the text
// capture the OCR stage should read.
type Store struct {
	deps Deps
	log  *zap.Logger
}

// NewStore builds the store-stage handler.
func NewStore(deps Deps) *Store {
	return &Store{deps: deps, log: deps.logger().Named("store")}
}

// Handle processes one store-queue message. Uploads are best effort per
// image, with two hard rules: losing a text capture kills the message
// because the OCR stage would be blind, and losing every image does too.
func (s *Store) Handle(ctx context.Context, msg broker.Message) error {
	in, err := decode[pipeline.StoreMessage](msg)
	if err != nil {
		return err
	}

	var stored []pipeline.StoredImage
	lastImageKey := ""

	for i, img := range in.Images {
		url, key, err := s.upload(ctx, in.CorrelationID, i, img)
		if err != nil {
			if img.Kind == pipeline.ImageTextCapture {
				return &pipeline.BusinessError{
					Class: pipeline.ClassUploadFailed,
					Err:   fmt.Errorf("text capture upload failed: %w", err),
				}
			}
			s.log.Warn("image upload failed, skipping",
				zap.String("correlation_id", in.CorrelationID),
				zap.String("temp_path", img.TempPath),
				zap.Error(err))
			continue
		}

		stored = append(stored, pipeline.StoredImage{Kind: img.Kind, Key: key, URL: url})
		// The notice text is rendered into the post's last capture, so
		// the latest text capture wins.
		if img.Kind == pipeline.ImageTextCapture {
			lastImageKey = key
		}
		if err := os.Remove(img.TempPath); err != nil {
			s.log.Warn("failed to remove staged image", zap.String("temp_path", img.TempPath), zap.Error(err))
		}
	}

	if len(in.Images) > 0 && len(stored) == 0 {
		return &pipeline.BusinessError{
			Class: pipeline.ClassUploadFailed,
			Err:   fmt.Errorf("all %d image uploads failed", len(in.Images)),
		}
	}
	if lastImageKey == "" && len(stored) > 0 {
		lastImageKey = stored[len(stored)-1].Key
	}

	s.log.Info("images stored",
		zap.String("correlation_id", in.CorrelationID),
		zap.Int64("case_id", in.CaseID),
		zap.Int("stored", len(stored)),
		zap.String("last_image_key", lastImageKey))

	return s.deps.Producer.Publish(ctx, pipeline.ExtractTextQueue, in.CorrelationID, pipeline.ExtractTextMessage{
		CorrelationID: in.CorrelationID,
		CaseID:        in.CaseID,
		PostURL:       in.PostURL,
		Title:         in.Title,
		Text:          in.Text,
		Images:        stored,
		Contacts:      in.Contacts,
		LastImageKey:  lastImageKey,
		CreatedAt:     in.CreatedAt,
	})
}

func (s *Store) upload(ctx context.Context, corrID string, seq int, img pipeline.CrawledImage) (url, key string, err error) {
	data, err := os.ReadFile(img.TempPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read staged image: %w", err)
	}

	ext := filepath.Ext(img.TempPath)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key = fmt.Sprintf("cases/%s/%d%s", corrID, seq, ext)
	url, err = s.deps.Blobs.Put(ctx, key, contentType, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload %q: %w", key, err)
	}
	return url, key, nil
}
