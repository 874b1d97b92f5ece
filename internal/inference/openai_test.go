package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/cardscan/internal/imageloader"
	"github.com/example/cardscan/internal/prompt"
)

func testRequest(t *testing.T) prompt.Request {
	t.Helper()
	img, err := imageloader.FromBytes([]byte("\x89PNG\r\n\x1a\n----------------"), 0)
	require.NoError(t, err)
	return prompt.Build(img)
}

func newTestClient(url string, timeout time.Duration) *OpenAIClient {
	return NewOpenAIClient(resty.New(), Options{
		BaseURL: url + "/v1/",
		APIKey:  "token-123",
		Model:   "gemma-test",
		Timeout: timeout,
	}, zap.NewNop())
}

func TestCompleteSendsMultimodalChatRequest(t *testing.T) {
	req := testRequest(t)
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"name\":\"A\"}"}},{"message":{"content":"second"}}]}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL, time.Second).Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"A"}`, reply)

	assert.Equal(t, "gemma-test", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "text", got.Messages[0].Content[0].Type)
	assert.Equal(t, prompt.Instruction(), got.Messages[0].Content[0].Text)
	assert.Equal(t, "image_url", got.Messages[0].Content[1].Type)
	require.NotNil(t, got.Messages[0].Content[1].ImageURL)
	assert.Equal(t, req.ImageDataURL(), got.Messages[0].Content[1].ImageURL.URL)
}

func TestCompleteFailuresAreInferenceFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "cold start", http.StatusInternalServerError)
		},
		"unauthorized": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>gateway</html>"))
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"null content": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":null}}]}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				handler(w, r)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).Complete(context.Background(), testRequest(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInferenceFailure)
			assert.Equal(t, int32(1), calls.Load(), "client must not retry")
		})
	}
}

func TestCompleteHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	started := time.Now()
	_, err := newTestClient(srv.URL, 50*time.Millisecond).Complete(context.Background(), testRequest(t))
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestCompleteUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, time.Second).Complete(context.Background(), testRequest(t))
	assert.ErrorIs(t, err, ErrInferenceFailure)
}
