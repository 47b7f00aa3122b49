package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topoom/casefeed/internal/ocr"
)

func TestMemoryCreateCaseIdempotent(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	id1, err := m.CreateCase(ctx, CaseSeed{CorrelationID: "corr-1", PostURL: "u1", Title: "t"})
	require.NoError(t, err)

	id2, err := m.CreateCase(ctx, CaseSeed{CorrelationID: "corr-1", PostURL: "u2", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "retried crawl reuses the existing case")

	c, ok := m.Case(id1)
	require.True(t, ok)
	assert.Equal(t, "u2", c.PostURL)
	assert.Equal(t, DefaultNationality, c.Nationality)
}

func TestMemoryUpdateCaseFields(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	id, err := m.CreateCase(ctx, CaseSeed{CorrelationID: "corr-1", PostURL: "u", Title: "t"})
	require.NoError(t, err)

	require.NoError(t, m.UpdateCaseFields(ctx, id, "text", ocr.ParsedCase{PersonName: "홍길동"}))

	c, ok := m.Case(id)
	require.True(t, ok)
	assert.Equal(t, "text", c.OCRText)
	require.NotNil(t, c.Parsed)
	assert.Equal(t, "홍길동", c.Parsed.PersonName)
	assert.Nil(t, c.Update)

	assert.Error(t, m.UpdateCaseFields(ctx, 999, "", ocr.ParsedCase{}))
}

func TestMemoryFinalizeAndReview(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	id, err := m.CreateCase(ctx, CaseSeed{CorrelationID: "corr-1", PostURL: "u", Title: "t"})
	require.NoError(t, err)

	require.NoError(t, m.FinalizeCase(ctx, CaseUpdate{CaseID: id, OCRText: "text"}))
	require.NoError(t, m.SetManualReview(ctx, id, true))

	c, _ := m.Case(id)
	require.NotNil(t, c.Update)
	assert.Equal(t, "text", c.Update.OCRText)
	assert.True(t, c.ManualReview)

	assert.Error(t, m.FinalizeCase(ctx, CaseUpdate{CaseID: 999}))
	assert.Error(t, m.SetManualReview(ctx, 999, true))
}

func TestMemoryRecordFirstWriterWins(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, PermanentFailure{CorrelationID: "corr-d", SweepCount: 3}))
	require.NoError(t, m.Record(ctx, PermanentFailure{CorrelationID: "corr-d", SweepCount: 9}))

	f, ok := m.Failure("corr-d")
	require.True(t, ok)
	assert.Equal(t, 3, f.SweepCount)
	assert.Equal(t, 1, m.Failures())
}
