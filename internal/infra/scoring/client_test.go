package scoring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vocalid/voiceauth/internal/infra/config"
)

func TestClient_EmbedAndQuality(t *testing.T) {
	audio := []byte("pcm-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil || string(decoded) != string(audio) {
			t.Errorf("expected audio round-trip, got %q (%v)", decoded, err)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embedding:  []float64{0.1, 0.2, 0.3},
			SNRdB:      22.5,
			DurationMS: 2600,
		})
	}))
	defer server.Close()

	client := NewClient(config.ScorerSettings{EmbedURL: server.URL + "/embed", Timeout: 5 * time.Second})

	embedding, metrics, err := client.EmbedAndQuality(context.Background(), audio)
	if err != nil {
		t.Fatalf("EmbedAndQuality returned error: %v", err)
	}
	if len(embedding) != 3 {
		t.Fatalf("expected 3-dim embedding, got %v", embedding)
	}
	if metrics.SNRdB != 22.5 {
		t.Fatalf("expected snr 22.5, got %v", metrics.SNRdB)
	}
	if metrics.Duration != 2600*time.Millisecond {
		t.Fatalf("expected duration 2.6s, got %v", metrics.Duration)
	}
}

func TestClient_EmbedRejectsEmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer server.Close()

	client := NewClient(config.ScorerSettings{EmbedURL: server.URL})

	if _, _, err := client.EmbedAndQuality(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error for empty embedding")
	}
}

func TestClient_Similarity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req similarityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Voiceprint) != 2 {
			t.Errorf("expected voiceprint in request, got %v", req.Voiceprint)
		}
		_ = json.NewEncoder(w).Encode(scoreResponse{Score: 0.83})
	}))
	defer server.Close()

	client := NewClient(config.ScorerSettings{SimilarityURL: server.URL})

	score, err := client.Similarity(context.Background(), []byte("x"), []float64{0.6, 0.8})
	if err != nil {
		t.Fatalf("Similarity returned error: %v", err)
	}
	if score != 0.83 {
		t.Fatalf("expected score 0.83, got %v", score)
	}
}

func TestClient_SpoofProbabilityErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(config.ScorerSettings{SpoofURL: server.URL})

	if _, err := client.SpoofProbability(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestClient_PhraseMatchSendsExpectedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req phraseMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ExpectedText != "the quick brown fox" {
			t.Errorf("expected phrase text in request, got %q", req.ExpectedText)
		}
		_ = json.NewEncoder(w).Encode(scoreResponse{Score: 0.91})
	}))
	defer server.Close()

	client := NewClient(config.ScorerSettings{PhraseURL: server.URL})

	score, err := client.PhraseMatch(context.Background(), []byte("x"), "the quick brown fox")
	if err != nil {
		t.Fatalf("PhraseMatch returned error: %v", err)
	}
	if score != 0.91 {
		t.Fatalf("expected score 0.91, got %v", score)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(config.ScorerSettings{SpoofURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.SpoofProbability(ctx, []byte("x")); err == nil {
		t.Fatalf("expected error when context deadline passes")
	}
}
