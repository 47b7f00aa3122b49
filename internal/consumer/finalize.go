package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/store"
)

// Finalize geocodes the occurrence location and persists everything the
// pipeline has accumulated onto the case row.
type Finalize struct {
	deps Deps
	log  *zap.Logger
}

// NewFinalize builds the finalize-stage handler.
func NewFinalize(deps Deps) *Finalize {
	return &Finalize{deps: deps, log: deps.logger().Named("finalize")}
}

// Handle processes one finalize-queue message. A location the geocoder
// does not know is a failure (the case is useless on the map without
// coordinates); a missing location skips geocoding and flags the case
// for manual review instead.
func (f *Finalize) Handle(ctx context.Context, msg broker.Message) error {
	in, err := decode[pipeline.FinalizeMessage](msg)
	if err != nil {
		return err
	}

	var lat, lng *float64
	if loc := in.Parsed.OccurredLocation; loc != "" {
		coords, found, err := f.deps.Geocoder.Resolve(ctx, loc)
		if err != nil {
			return fmt.Errorf("failed to geocode %q: %w", loc, err)
		}
		if !found {
			return &pipeline.BusinessError{
				Class: pipeline.ClassGeocodeFailed,
				Err:   fmt.Errorf("no coordinates for %q", loc),
			}
		}
		lat, lng = &coords.Latitude, &coords.Longitude
	}

	manualReview := in.Parsed.PersonName == "" ||
		in.Parsed.OccurredAt == "" ||
		in.Parsed.OccurredLocation == ""

	files := make([]store.CaseFile, 0, len(in.Images))
	for i, img := range in.Images {
		files = append(files, store.CaseFile{Seq: i, Kind: img.Kind, Key: img.Key, URL: img.URL})
	}
	contacts := make([]store.CaseContact, 0, len(in.Contacts))
	for _, c := range in.Contacts {
		contacts = append(contacts, store.CaseContact{Organization: c.Organization, PhoneNumber: c.PhoneNumber})
	}

	err = f.deps.Cases.FinalizeCase(ctx, store.CaseUpdate{
		CaseID:       in.CaseID,
		OCRText:      in.OCRText,
		Parsed:       in.Parsed,
		Latitude:     lat,
		Longitude:    lng,
		ManualReview: manualReview,
		Files:        files,
		Contacts:     contacts,
	})
	if err != nil {
		return fmt.Errorf("failed to finalize case %d: %w", in.CaseID, err)
	}

	f.log.Info("case finalized",
		zap.String("correlation_id", in.CorrelationID),
		zap.Int64("case_id", in.CaseID),
		zap.Bool("manual_review", manualReview))
	return nil
}
