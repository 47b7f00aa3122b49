package extern

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPOCRClientExtractText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"extracted_text":"성명 홍길동 나이 10"}`))
	}))
	defer srv.Close()

	client := NewHTTPOCRClient(srv.URL, time.Second, zap.NewNop())
	text, err := client.ExtractText(context.Background(), "https://blobs.example.com/cases/abc/3.png")
	require.NoError(t, err)
	assert.Equal(t, "성명 홍길동 나이 10", text)
}

func TestHTTPOCRClientFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantErrText string
	}{
		{
			name: "service reports failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"error":"model overloaded"}`))
			},
			wantErrText: "model overloaded",
		},
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErrText: "status 502",
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErrText: "decode",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewHTTPOCRClient(srv.URL, time.Second, zap.NewNop())
			_, err := client.ExtractText(context.Background(), "https://blobs.example.com/x.png")
			assert.ErrorContains(t, err, tt.wantErrText)
		})
	}
}
