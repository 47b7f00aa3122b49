// Package store persists cases and the permanent-failure ledger in
// Postgres.
package store

import (
	"context"
	"time"

	"github.com/topoom/casefeed/internal/ocr"
	"github.com/topoom/casefeed/internal/pipeline"
)

// DefaultNationality is assumed for every crawled case; the bulletin
// board being crawled only lists domestic cases.
const DefaultNationality = "내국인"

// CaseSeed is the skeleton row created when a post enters the pipeline,
// before anything has been extracted.
type CaseSeed struct {
	CorrelationID string
	PostURL       string
	Title         string
	CreatedAt     time.Time
}

// CaseFile is one stored image attached to a case. Seq preserves the
// order the images appeared in the post.
type CaseFile struct {
	Seq  int
	Kind pipeline.ImageKind
	Key  string
	URL  string
}

// CaseContact is one organization/phone pair attached to a case.
type CaseContact struct {
	Organization string
	PhoneNumber  string
}

// CaseUpdate carries everything the finalize stage writes onto an
// existing case in one shot.
type CaseUpdate struct {
	CaseID       int64
	OCRText      string
	Parsed       ocr.ParsedCase
	Latitude     *float64
	Longitude    *float64
	ManualReview bool
	Files        []CaseFile
	Contacts     []CaseContact
}

// CaseStore persists cases. CreateCase is idempotent by correlation id;
// the crawl stage can be retried without minting duplicate rows.
// UpdateCaseFields writes the OCR text and parsed fields as soon as they
// exist, so the case row carries them even if a later stage never
// completes; FinalizeCase overwrites them along with everything else.
type CaseStore interface {
	CreateCase(ctx context.Context, seed CaseSeed) (int64, error)
	UpdateCaseFields(ctx context.Context, caseID int64, ocrText string, parsed ocr.ParsedCase) error
	FinalizeCase(ctx context.Context, update CaseUpdate) error
	SetManualReview(ctx context.Context, caseID int64, needed bool) error
	Close() error
}

// PermanentFailure is one ledger entry for a message the sweeper gave up
// on. EventAt is the original event's timestamp: the parsed occurrence
// date when the corpse carries one, otherwise when the post entered the
// pipeline. Payload is the dead message body, kept verbatim so an
// operator can replay it by hand.
type PermanentFailure struct {
	CorrelationID string
	OriginQueue   string
	FailureClass  string
	Title         string
	Detail        string
	SweepCount    int
	EventAt       time.Time
	Payload       []byte
}

// FailureLedger records permanent failures for manual review. Record is
// idempotent by correlation id: sweeping the same corpse twice must not
// produce two ledger rows.
type FailureLedger interface {
	Record(ctx context.Context, failure PermanentFailure) error
}
