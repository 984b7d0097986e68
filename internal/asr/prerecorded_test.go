package asr

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/pkg/httpclient"
)

func TestPrerecordedClient_Transcribe_PrefersUtterances(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "video/mp4", r.Header.Get("Content-Type"))
		assert.Equal(t, "ko", r.URL.Query().Get("language"))
		assert.Equal(t, "true", r.URL.Query().Get("utterances"))

		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"metadata": {"duration": 120.5},
			"results": {
				"utterances": [
					{"start": 0, "end": 2.1, "confidence": 0.9, "transcript": "hello", "speaker": 0}
				]
			}
		}`))
	}))
	defer srv.Close()

	client := NewPrerecordedClient(httpclient.NewWithDefaults(), srv.URL, "key")
	resp, err := client.Transcribe(t.Context(), strings.NewReader("fake-mp4-bytes"), 14)
	require.NoError(t, err)

	assert.Equal(t, "fake-mp4-bytes", string(gotBody))
	assert.InDelta(t, 120.5, resp.Metadata.Duration, 0.001)
	require.Len(t, resp.Results.Utterances, 1)
	assert.Equal(t, "hello", resp.Results.Utterances[0].Transcript)
	assert.Nil(t, resp.Words())
}

func TestPrerecordedClient_Transcribe_FallsBackToWords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"metadata": {"duration": 10},
			"results": {
				"channels": [{"alternatives": [{"words": [
					{"word": "hi", "start": 0, "end": 0.5, "confidence": 0.8, "speaker": 0}
				]}]}]
			}
		}`))
	}))
	defer srv.Close()

	client := NewPrerecordedClient(httpclient.NewWithDefaults(), srv.URL, "key")
	resp, err := client.Transcribe(t.Context(), strings.NewReader("x"), 1)
	require.NoError(t, err)

	assert.Empty(t, resp.Results.Utterances)
	words := resp.Words()
	require.Len(t, words, 1)
	assert.Equal(t, "hi", words[0].Word)
}

func TestPrerecordedClient_Transcribe_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewPrerecordedClient(httpclient.NewWithDefaults(), srv.URL, "key")
	_, err := client.Transcribe(t.Context(), strings.NewReader("x"), 1)
	assert.Error(t, err)
}
