package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jihoonkim/legisub/pkg/httpclient"
)

// PrerecordedClient uploads a finished media file to the ASR provider's
// pre-recorded HTTP endpoint for the VOD Batch Worker (spec.md §4.9).
type PrerecordedClient struct {
	client *httpclient.Client
	url    string
	apiKey string
}

// NewPrerecordedClient constructs a client bound to the provider's
// pre-recorded transcription endpoint.
func NewPrerecordedClient(client *httpclient.Client, providerURL, apiKey string) *PrerecordedClient {
	return &PrerecordedClient{client: client, url: providerURL, apiKey: apiKey}
}

// TranscribeWord is one per-word entry in the pre-recorded reply's
// words fallback array.
type TranscribeWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker"`
}

// Utterance is one entry in the pre-recorded reply's preferred
// utterances array.
type Utterance struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Transcript string  `json:"transcript"`
	Speaker    *int    `json:"speaker"`
}

// TranscribeResponse is the pre-recorded endpoint's reply shape (spec.md
// §6).
type TranscribeResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Utterances []Utterance `json:"utterances"`
		Channels   []struct {
			Alternatives []struct {
				Words []TranscribeWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Words returns the first channel's first alternative's word list, or nil
// if the reply carried no channel alternative.
func (r TranscribeResponse) Words() []TranscribeWord {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil
	}
	return r.Results.Channels[0].Alternatives[0].Words
}

// Transcribe streams body (an MP4 file) to the provider and returns its
// parsed reply. body's Content-Length, if known, lets the caller track
// upload progress via a counting reader wrapped around body before calling
// this method; Transcribe itself does not instrument progress.
func (c *PrerecordedClient) Transcribe(ctx context.Context, body io.Reader, contentLength int64) (TranscribeResponse, error) {
	u, err := buildPrerecordedURL(c.url)
	if err != nil {
		return TranscribeResponse{}, fmt.Errorf("building pre-recorded ASR URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return TranscribeResponse{}, fmt.Errorf("building pre-recorded ASR request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "video/mp4")
	if contentLength > 0 {
		req.ContentLength = contentLength
	}

	resp, err := c.client.DoWithContext(ctx, req)
	if err != nil {
		return TranscribeResponse{}, fmt.Errorf("uploading to pre-recorded ASR endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TranscribeResponse{}, fmt.Errorf("pre-recorded ASR endpoint returned %d", resp.StatusCode)
	}

	var out TranscribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TranscribeResponse{}, fmt.Errorf("decoding pre-recorded ASR reply: %w", err)
	}
	return out, nil
}

func buildPrerecordedURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	q.Set("language", "ko")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("diarize", "true")
	q.Set("utterances", "true")
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
