package scoring

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/infra/config"
)

const maxErrorBody = 512

// Client calls the external scoring services over HTTP. Audio travels as
// base64 inside a JSON envelope; each endpoint returns a single score or, for
// embedding, a vector with quality metrics. Timeouts come from the caller's
// context, the embedded http.Client timeout is a hard backstop.
type Client struct {
	http          *http.Client
	embedURL      string
	similarityURL string
	spoofURL      string
	phraseURL     string
}

// NewClient constructs a scoring client from the scorer settings.
func NewClient(cfg config.ScorerSettings) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: timeout},
		embedURL:      cfg.EmbedURL,
		similarityURL: cfg.SimilarityURL,
		spoofURL:      cfg.SpoofURL,
		phraseURL:     cfg.PhraseURL,
	}
}

type embedRequest struct {
	Audio string `json:"audio"`
}

type embedResponse struct {
	Embedding  []float64 `json:"embedding"`
	SNRdB      float64   `json:"snr_db"`
	DurationMS int64     `json:"duration_ms"`
}

// EmbedAndQuality returns the speaker embedding and quality metrics for one
// audio sample.
func (c *Client) EmbedAndQuality(ctx context.Context, audio []byte) ([]float64, port.QualityMetrics, error) {
	var resp embedResponse
	if err := c.post(ctx, c.embedURL, embedRequest{Audio: base64.StdEncoding.EncodeToString(audio)}, &resp); err != nil {
		return nil, port.QualityMetrics{}, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, port.QualityMetrics{}, fmt.Errorf("embed: empty embedding in response")
	}
	metrics := port.QualityMetrics{
		SNRdB:    resp.SNRdB,
		Duration: time.Duration(resp.DurationMS) * time.Millisecond,
	}
	return resp.Embedding, metrics, nil
}

type similarityRequest struct {
	Audio      string    `json:"audio"`
	Voiceprint []float64 `json:"voiceprint"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// Similarity scores how closely the audio matches the stored voiceprint.
func (c *Client) Similarity(ctx context.Context, audio []byte, voiceprint []float64) (float64, error) {
	var resp scoreResponse
	req := similarityRequest{
		Audio:      base64.StdEncoding.EncodeToString(audio),
		Voiceprint: voiceprint,
	}
	if err := c.post(ctx, c.similarityURL, req, &resp); err != nil {
		return 0, fmt.Errorf("similarity: %w", err)
	}
	return resp.Score, nil
}

type spoofRequest struct {
	Audio string `json:"audio"`
}

// SpoofProbability scores how likely the audio is synthetic or replayed.
func (c *Client) SpoofProbability(ctx context.Context, audio []byte) (float64, error) {
	var resp scoreResponse
	if err := c.post(ctx, c.spoofURL, spoofRequest{Audio: base64.StdEncoding.EncodeToString(audio)}, &resp); err != nil {
		return 0, fmt.Errorf("spoof probability: %w", err)
	}
	return resp.Score, nil
}

type phraseMatchRequest struct {
	Audio        string `json:"audio"`
	ExpectedText string `json:"expected_text"`
}

// PhraseMatch scores how well the utterance matches the expected phrase text.
func (c *Client) PhraseMatch(ctx context.Context, audio []byte, expectedText string) (float64, error) {
	var resp scoreResponse
	req := phraseMatchRequest{
		Audio:        base64.StdEncoding.EncodeToString(audio),
		ExpectedText: expectedText,
	}
	if err := c.post(ctx, c.phraseURL, req, &resp); err != nil {
		return 0, fmt.Errorf("phrase match: %w", err)
	}
	return resp.Score, nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ port.EnrollmentScorer   = (*Client)(nil)
	_ port.VerificationScorer = (*Client)(nil)
)
