package transcribe

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe_MockFallback(t *testing.T) {
	tr := &PromptTranscriber{client: nil}

	prompt, confidence, err := tr.Transcribe(context.Background(), Request{
		Audio: base64.StdEncoding.EncodeToString([]byte("audio-bytes")),
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "dragon")
	assert.Greater(t, confidence, float32(0))
}

func TestTranscribe_RejectsBadAudio(t *testing.T) {
	tr := &PromptTranscriber{client: nil}

	_, _, err := tr.Transcribe(context.Background(), Request{Audio: "!!not-base64!!"})
	assert.Error(t, err)

	_, _, err = tr.Transcribe(context.Background(), Request{Audio: ""})
	assert.Error(t, err)
}

func TestRequest_Normalize(t *testing.T) {
	var req Request
	req.Normalize()
	assert.Equal(t, "WEBM_OPUS", req.Encoding)
	assert.Equal(t, 48000, req.SampleRate)
	assert.Equal(t, "en-US", req.LanguageCode)

	req = Request{Encoding: "FLAC", SampleRate: 16000, LanguageCode: "de-DE"}
	req.Normalize()
	assert.Equal(t, "FLAC", req.Encoding)
	assert.Equal(t, 16000, req.SampleRate)
	assert.Equal(t, "de-DE", req.LanguageCode)
}
