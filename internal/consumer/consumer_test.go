package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/extern"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/storage"
	"github.com/topoom/casefeed/internal/store"
)

// Test fakes for the external collaborators.

type fakeCrawler struct {
	post extern.CrawledPost
	err  error
}

func (f *fakeCrawler) FetchPost(_ context.Context, _ string) (extern.CrawledPost, error) {
	return f.post, f.err
}

type fakeClassifier struct {
	kind pipeline.ImageKind
	err  error
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (pipeline.ImageKind, error) {
	return f.kind, f.err
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) ExtractText(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeGeocoder struct {
	coords extern.Coordinates
	found  bool
	err    error
	calls  int
}

func (f *fakeGeocoder) Resolve(_ context.Context, _ string) (extern.Coordinates, bool, error) {
	f.calls++
	return f.coords, f.found, f.err
}

// testRig bundles a full in-memory dependency set.
type testRig struct {
	broker     *broker.Memory
	cases      *store.Memory
	blobs      *storage.MemoryProvider
	crawler    *fakeCrawler
	classifier *fakeClassifier
	ocr        *fakeOCR
	geocoder   *fakeGeocoder
	deps       Deps
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		broker:     broker.NewMemory(64),
		cases:      store.NewMemory(),
		blobs:      storage.NewMemoryProvider(),
		crawler:    &fakeCrawler{},
		classifier: &fakeClassifier{kind: pipeline.ImageTextCapture},
		ocr:        &fakeOCR{},
		geocoder:   &fakeGeocoder{},
	}
	t.Cleanup(func() { _ = rig.broker.Close() })

	rig.deps = Deps{
		Producer:   pipeline.NewProducer(rig.broker, zap.NewNop()),
		Cases:      rig.cases,
		Blobs:      rig.blobs,
		Crawler:    rig.crawler,
		Classifier: rig.classifier,
		OCR:        rig.ocr,
		Geocoder:   rig.geocoder,
		Log:        zap.NewNop(),
	}
	return rig
}

// stageImage writes a fake image file and returns its path.
func stageImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("image bytes of "+name), 0o644))
	return path
}

// receive decodes the next envelope from a queue, failing if none is
// waiting.
func receive[T any](t *testing.T, b *broker.Memory, queue string) (T, broker.Message) {
	t.Helper()
	msg, err := b.Receive(context.Background(), queue, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg, "expected a message on %s", queue)

	var v T
	require.NoError(t, json.Unmarshal(msg.Body, &v))
	return v, *msg
}

// marshal wraps an envelope in a broker message the way the producer
// would.
func marshal(t *testing.T, corrID string, envelope any) broker.Message {
	t.Helper()
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	msg := broker.Message{Body: body}
	broker.SetCorrelationID(&msg, corrID)
	return msg
}

// marshalRaw builds a broker message with an arbitrary body.
func marshalRaw(body string) broker.Message {
	return broker.Message{Body: []byte(body)}
}

// brokerCorrelation reads the metadata correlation id off a message.
func brokerCorrelation(msg broker.Message) string {
	return broker.CorrelationID(&msg)
}

// extCrawledPost builds a minimal crawled post without images.
func extCrawledPost(title, text string) extern.CrawledPost {
	return extern.CrawledPost{Title: title, Text: text}
}

const sampleNotice = "성명 홍길동 나이 10 성별 여 발생일시 2024년01월01일 발생장소 서울시 강남구"

func TestPipelineEndToEnd(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	facePath := stageImage(t, "face.jpg")
	capturePath := stageImage(t, "capture.png")
	rig.crawler.post = extern.CrawledPost{
		Title: "실종자를 찾습니다",
		Text:  "본문",
		Images: []pipeline.CrawledImage{
			{Kind: pipeline.ImageFace, TempPath: facePath},
			{TempPath: capturePath},
		},
		Contacts: []pipeline.Contact{{Organization: "강남경찰서", PhoneNumber: "02-1234-5678"}},
	}
	rig.ocr.text = sampleNotice
	rig.geocoder.coords = extern.Coordinates{Latitude: 37.4979502, Longitude: 127.0276368}
	rig.geocoder.found = true

	handlers := Handlers(rig.deps)
	start := pipeline.CrawlMessage{CorrelationID: "corr-e2e", PostURL: "https://board.example.com/post/42", CreatedAt: time.Now()}
	msg := marshal(t, "corr-e2e", start)

	// Pump the message through every stage in order.
	for _, queue := range pipeline.StageQueues() {
		require.NoError(t, handlers[queue](ctx, msg), "stage %s", queue)
		if queue == pipeline.FinalizeQueue {
			break
		}
		next := pipeline.StageQueues()[indexOf(t, queue)+1]
		var raw broker.Message
		_, raw = receiveRaw(t, rig.broker, next)
		require.Equal(t, "corr-e2e", broker.CorrelationID(&raw), "correlation id survives %s", queue)
		msg = raw
	}

	c, ok := rig.cases.CaseByCorrelation("corr-e2e")
	require.True(t, ok)
	require.NotNil(t, c.Update, "finalize persisted the update")
	require.Equal(t, "홍길동", c.Update.Parsed.PersonName)
	require.Equal(t, "여성", c.Update.Parsed.Gender)
	require.Equal(t, "2024-01-01", c.Update.Parsed.OccurredAt)
	require.NotNil(t, c.Update.Latitude)
	require.InDelta(t, 37.4979502, *c.Update.Latitude, 1e-9)
	require.False(t, c.Update.ManualReview)
	require.Len(t, c.Update.Files, 2)
	require.Len(t, c.Update.Contacts, 1)
	require.Equal(t, 2, rig.blobs.Len())

	// Staged files are cleaned up once uploaded.
	_, err := os.Stat(facePath)
	require.True(t, os.IsNotExist(err))
}

func indexOf(t *testing.T, queue string) int {
	t.Helper()
	for i, q := range pipeline.StageQueues() {
		if q == queue {
			return i
		}
	}
	t.Fatalf("unknown queue %s", queue)
	return -1
}

func receiveRaw(t *testing.T, b *broker.Memory, queue string) (json.RawMessage, broker.Message) {
	t.Helper()
	msg, err := b.Receive(context.Background(), queue, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg, "expected a message on %s", queue)
	return msg.Body, *msg
}
