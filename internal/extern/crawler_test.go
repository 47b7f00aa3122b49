package extern

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/pipeline"
)

const postHTML = `<html><body>
<div class="board-view">
  <h4 class="title">실종자를 찾습니다</h4>
  <div class="content">
    <p>성명 홍길동 나이 10 성별 여</p>
    <p>강남경찰서: 02-1234-5678 실종수사팀 02-1234-5678</p>
    <img src="/images/capture.png"/>
    <img src="/images/face.jpg"/>
  </div>
</div>
</body></html>`

func newPostServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/post/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, postHTML)
	})
	mux.HandleFunc("/images/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("image bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollyPostCrawlerFetchPost(t *testing.T) {
	t.Parallel()

	srv := newPostServer(t)
	crawler, err := NewCollyPostCrawler(CrawlerConfig{TempDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	post, err := crawler.FetchPost(context.Background(), srv.URL+"/post/42")
	require.NoError(t, err)

	assert.Equal(t, "실종자를 찾습니다", post.Title)
	assert.Contains(t, post.Text, "성명 홍길동")

	require.Len(t, post.Images, 2)
	for _, img := range post.Images {
		assert.Empty(t, img.Kind, "kind is assigned later, by the classifier")
		data, err := os.ReadFile(img.TempPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("image bytes"), data)
	}

	require.Len(t, post.Contacts, 1, "duplicate phone numbers collapse")
	assert.Equal(t, pipeline.Contact{Organization: "강남경찰서", PhoneNumber: "02-1234-5678"}, post.Contacts[0])
}

func TestCollyPostCrawlerNoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing here</p></body></html>`)
	}))
	defer srv.Close()

	crawler, err := NewCollyPostCrawler(CrawlerConfig{TempDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	_, err = crawler.FetchPost(context.Background(), srv.URL+"/empty")
	assert.ErrorContains(t, err, "selectors")
}

func TestExtractContacts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []pipeline.Contact
	}{
		{
			name: "colon separated",
			text: "문의 강남경찰서: 02-1234-5678",
			want: []pipeline.Contact{{Organization: "강남경찰서", PhoneNumber: "02-1234-5678"}},
		},
		{
			name: "dots normalized to dashes",
			text: "실종수사팀 031.123.4567",
			want: []pipeline.Contact{{Organization: "실종수사팀", PhoneNumber: "031-123-4567"}},
		},
		{name: "no contacts", text: "연락처가 없는 본문", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extractContacts(tt.text))
		})
	}
}
