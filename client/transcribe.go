package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/media"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// stageTranscribe tags errors from this adapter.
const stageTranscribe = "transcribe"

// TranscribeClient calls a speech-to-text service over HTTP. The audio goes
// up as a WAV attachment; the service answers with timestamped segments.
type TranscribeClient struct {
	opts       Options
	httpClient *http.Client
}

// transcriptionResponse is the wire shape of a transcription result.
type transcriptionResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// NewTranscribeClient creates a transcription adapter.
func NewTranscribeClient(opts Options) *TranscribeClient {
	opts.normalize()
	return &TranscribeClient{
		opts:       opts,
		httpClient: &http.Client{},
	}
}

// Transcribe sends the track and returns the service's segments converted
// to the canonical shape. Timestamp repair is the caller's concern.
func (c *TranscribeClient) Transcribe(ctx context.Context, track *media.AudioTrack, languageHint string) ([]transcript.Segment, error) {
	body, contentType, err := c.buildRequestBody(track, languageHint)
	if err != nil {
		return nil, err
	}

	var segments []transcript.Segment
	err = withRetry(ctx, stageTranscribe, &c.opts, func(ctx context.Context) error {
		url := c.opts.BaseURL + "/v1/audio/transcriptions"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		setAuth(req, c.opts.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return httpError(stageTranscribe, resp.StatusCode, respBody)
		}

		var parsed transcriptionResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}

		segments = segments[:0]
		for _, s := range parsed.Segments {
			segments = append(segments, transcript.Segment{
				Start: time.Duration(s.Start * float64(time.Second)),
				End:   time.Duration(s.End * float64(time.Second)),
				Text:  s.Text,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.opts.Logger.Debug("transcription call completed",
		logging.F("segments", len(segments)),
		logging.F("model", c.opts.Model))
	return segments, nil
}

func (c *TranscribeClient) buildRequestBody(track *media.AudioTrack, languageHint string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(media.EncodeWAV(track)); err != nil {
		return nil, "", fmt.Errorf("write audio payload: %w", err)
	}

	if err := w.WriteField("model", c.opts.Model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if languageHint != "" {
		if err := w.WriteField("language", languageHint); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := w.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", fmt.Errorf("write format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
