package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url with extra params", "https://www.youtube.com/watch?list=PL1&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"not youtube", "https://vimeo.com/12345", ""},
		{"garbage", "not a url", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExtractVideoID(tt.url))
		})
	}
}

func newTestSummarizer(t *testing.T, handler http.HandlerFunc) *SummarizerClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewSummarizerClient(&config.Config{
		SummarizerURL:     srv.URL,
		SummarizerTimeout: 5,
	})
}

func TestSummarizeSuccess(t *testing.T) {
	client := newTestSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/summarize", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "https://youtu.be/dQw4w9WgXcQ", req["url"])
		require.Equal(t, "task-1", req["task_id"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"video_id":    "dQw4w9WgXcQ",
			"video_title": "Test Video",
			"duration":    360,
			"summary":     "A summary.",
			"key_points":  []string{"one", "two"},
		})
	})

	result, err := client.Summarize(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "task-1")
	require.NoError(t, err)
	require.Equal(t, "dQw4w9WgXcQ", result.VideoID)
	require.Equal(t, "Test Video", result.Title)
	require.Equal(t, 360, result.Duration)
	require.Equal(t, "A summary.", result.Summary)
}

func TestSummarizeInvalidURL(t *testing.T) {
	client := newTestSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("service must not be called for an invalid URL")
	})

	_, err := client.Summarize(context.Background(), "https://vimeo.com/12345", "task-1")
	require.ErrorIs(t, err, ErrInvalidVideoURL)
}

func TestSummarizeVideoTooLong(t *testing.T) {
	client := newTestSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"video_id": "dQw4w9WgXcQ",
			"duration": 3 * 60 * 60,
		})
	})

	_, err := client.Summarize(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "task-1")
	require.ErrorIs(t, err, ErrVideoTooLong)
}

func TestSummarizeServerErrorTripsBreaker(t *testing.T) {
	client := newTestSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "worker crashed", http.StatusInternalServerError)
	})

	_, err := client.Summarize(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "t1")
	require.Error(t, err)
	_, err = client.Summarize(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "t2")
	require.Error(t, err)

	// Two failures open the breaker; the third call fails fast
	require.Equal(t, CircuitOpen, client.Breaker().State())

	_, err = client.Summarize(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "t3")
	var openErr *ErrCircuitOpen
	require.ErrorAs(t, err, &openErr)
}

func TestSummarizeContextCancellation(t *testing.T) {
	client := newTestSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Summarize(ctx, "https://youtu.be/dQw4w9WgXcQ", "task-1")
	require.Error(t, err)
}
