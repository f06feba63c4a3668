package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/clipdigest/backend/internal/config"
)

// maxVideoDuration rejects videos the AI pipeline cannot process in one pass
const maxVideoDuration = 2 * 60 * 60 // 2 hours, in seconds

var (
	ErrInvalidVideoURL = errors.New("invalid YouTube URL")
	ErrVideoTooLong    = errors.New("video is too long, maximum duration is 2 hours")

	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
	}
)

// ExtractVideoID pulls the 11-character video ID out of a YouTube URL
func ExtractVideoID(url string) string {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(url); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// SummarizeResult is the structured payload the AI service returns
type SummarizeResult struct {
	VideoID       string          `json:"video_id"`
	VideoURL      string          `json:"video_url"`
	Title         string          `json:"video_title"`
	ChannelName   string          `json:"channel_name"`
	Duration      int             `json:"duration"`
	Summary       string          `json:"summary"`
	Synopsis      string          `json:"synopsis"`
	KeyPoints     json.RawMessage `json:"key_points"`
	KeyMoments    json.RawMessage `json:"key_moments"`
	Flashcards    json.RawMessage `json:"flashcards"`
	QuizQuestions json.RawMessage `json:"quiz_questions"`
	Glossary      json.RawMessage `json:"glossary"`
}

// SummarizerClient calls the external AI processing service that does
// transcription and summarization. All calls go through a circuit
// breaker so an outage over there fails fast over here.
type SummarizerClient struct {
	baseURL string
	client  *http.Client
	breaker *CircuitBreaker
}

func NewSummarizerClient(cfg *config.Config) *SummarizerClient {
	return &SummarizerClient{
		baseURL: cfg.SummarizerURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.SummarizerTimeout) * time.Second,
		},
		breaker: NewCircuitBreaker("summarizer", 2, 45*time.Second),
	}
}

// Breaker exposes the circuit breaker for health reporting
func (c *SummarizerClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// Summarize requests a summary for a video URL. The task ID lets the
// AI service report progress that clients poll for.
func (c *SummarizerClient) Summarize(ctx context.Context, videoURL, taskID string) (*SummarizeResult, error) {
	videoID := ExtractVideoID(videoURL)
	if videoID == "" {
		return nil, ErrInvalidVideoURL
	}

	payload, err := json.Marshal(map[string]string{
		"url":     videoURL,
		"task_id": taskID,
	})
	if err != nil {
		return nil, err
	}

	var result SummarizeResult
	err = c.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/summarize", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("summarizer request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return fmt.Errorf("failed to read summarizer response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("summarizer returned HTTP %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode summarizer response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duration > maxVideoDuration {
		return nil, ErrVideoTooLong
	}
	if result.VideoID == "" {
		result.VideoID = videoID
	}
	return &result, nil
}
