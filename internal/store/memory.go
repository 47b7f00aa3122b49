package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/topoom/casefeed/internal/ocr"
)

// Memory implements CaseStore and FailureLedger in process, for tests
// and single-binary deployments.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	cases    map[int64]*MemoryCase
	byCorr   map[string]int64
	failures map[string]PermanentFailure
}

// MemoryCase is the in-memory case row. OCRText and Parsed are filled by
// UpdateCaseFields before the finalize stage attaches its full Update.
type MemoryCase struct {
	ID            int64
	CorrelationID string
	PostURL       string
	Title         string
	Nationality   string
	CrawledAt     time.Time
	OCRText       string
	Parsed        *ocr.ParsedCase
	Update        *CaseUpdate
	ManualReview  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:   1,
		cases:    make(map[int64]*MemoryCase),
		byCorr:   make(map[string]int64),
		failures: make(map[string]PermanentFailure),
	}
}

// CreateCase inserts a skeleton case, returning the existing id when the
// correlation id was seen before.
func (m *Memory) CreateCase(_ context.Context, seed CaseSeed) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byCorr[seed.CorrelationID]; ok {
		m.cases[id].PostURL = seed.PostURL
		return id, nil
	}

	id := m.nextID
	m.nextID++
	m.cases[id] = &MemoryCase{
		ID:            id,
		CorrelationID: seed.CorrelationID,
		PostURL:       seed.PostURL,
		Title:         seed.Title,
		Nationality:   DefaultNationality,
		CrawledAt:     seed.CreatedAt,
	}
	m.byCorr[seed.CorrelationID] = id
	return id, nil
}

// UpdateCaseFields writes the OCR text and parsed fields onto an
// existing case.
func (m *Memory) UpdateCaseFields(_ context.Context, caseID int64, ocrText string, parsed ocr.ParsedCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[caseID]
	if !ok {
		return fmt.Errorf("case %d does not exist", caseID)
	}
	p := parsed
	c.OCRText = ocrText
	c.Parsed = &p
	return nil
}

// FinalizeCase attaches the update to an existing case.
func (m *Memory) FinalizeCase(_ context.Context, update CaseUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[update.CaseID]
	if !ok {
		return fmt.Errorf("case %d does not exist", update.CaseID)
	}
	u := update
	c.Update = &u
	c.ManualReview = update.ManualReview
	return nil
}

// SetManualReview flags an existing case.
func (m *Memory) SetManualReview(_ context.Context, caseID int64, needed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[caseID]
	if !ok {
		return fmt.Errorf("case %d does not exist", caseID)
	}
	c.ManualReview = needed
	return nil
}

// Record stores a permanent failure, first writer wins per correlation
// id.
func (m *Memory) Record(_ context.Context, failure PermanentFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.failures[failure.CorrelationID]; ok {
		return nil
	}
	m.failures[failure.CorrelationID] = failure
	return nil
}

// Case returns the case with the given id, for test assertions.
func (m *Memory) Case(id int64) (MemoryCase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return MemoryCase{}, false
	}
	return *c, true
}

// CaseByCorrelation returns the case for a correlation id.
func (m *Memory) CaseByCorrelation(corrID string) (MemoryCase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCorr[corrID]
	if !ok {
		return MemoryCase{}, false
	}
	return *m.cases[id], true
}

// Failure returns the recorded permanent failure for a correlation id.
func (m *Memory) Failure(corrID string) (PermanentFailure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.failures[corrID]
	return f, ok
}

// Failures reports how many permanent failures are recorded.
func (m *Memory) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failures)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var (
	_ CaseStore     = (*Memory)(nil)
	_ FailureLedger = (*Memory)(nil)
)
