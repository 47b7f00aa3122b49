// Package consumer implements the five pipeline stages. Each stage is a
// broker handler: decode the envelope, do the stage's work, publish the
// next envelope. Failures bubble up to the listener, which owns retry
// and dead-lettering.
package consumer

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/extern"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/storage"
	"github.com/topoom/casefeed/internal/store"
)

// Deps bundles the collaborators the stage handlers share.
type Deps struct {
	Producer   *pipeline.Producer
	Cases      store.CaseStore
	Blobs      storage.Provider
	Crawler    extern.PostCrawler
	Classifier extern.ImageClassifier
	OCR        extern.OCRClient
	Geocoder   extern.Geocoder
	Log        *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// Handlers wires one handler per stage queue.
func Handlers(deps Deps) map[string]broker.Handler {
	return map[string]broker.Handler{
		pipeline.CrawlQueue:       NewCrawl(deps).Handle,
		pipeline.ClassifyQueue:    NewClassify(deps).Handle,
		pipeline.StoreQueue:       NewStore(deps).Handle,
		pipeline.ExtractTextQueue: NewExtractText(deps).Handle,
		pipeline.FinalizeQueue:    NewFinalize(deps).Handle,
	}
}

func decode[T any](msg broker.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Body, &v); err != nil {
		return v, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return v, nil
}
