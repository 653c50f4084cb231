// Package scribe implements stt.Provider on the ElevenLabs speech-to-text
// API (the Scribe model family).
//
// Each Transcribe call wraps the segment in a WAV container and submits it as
// one multipart request to POST /v1/speech-to-text. Scribe reports the
// detected language with a probability, which is surfaced as the transcript
// confidence, plus word-level timestamps. It has no vocabulary-biasing
// mechanism, so segment hints are ignored.
//
// Usage:
//
//	p, err := scribe.New(apiKey)
//	transcript, err := p.Transcribe(ctx, seg)
package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "scribe_v1"
	defaultTimeout = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint, e.g. for a proxy or test server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithModelID selects the transcription model. Defaults to "scribe_v1".
func WithModelID(id string) Option {
	return func(p *Provider) {
		p.modelID = id
	}
}

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements stt.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// New creates a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("scribe: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		modelID:    defaultModelID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	if len(seg.PCM) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("model_id", p.modelID); err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: build request: %w", err)
	}
	if seg.Language != "" {
		if err := mw.WriteField("language_code", seg.Language); err != nil {
			return stt.Transcript{}, fmt.Errorf("scribe: build request: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: build request: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(seg.PCM, seg.SampleRate, seg.Channels)); err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/speech-to-text", body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: build request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, fmt.Errorf("scribe: server returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sr scribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return stt.Transcript{}, fmt.Errorf("scribe: decode response: %w", err)
	}
	return sr.transcript(seg.Duration()), nil
}

// scribeResponse mirrors the JSON body of a successful transcription.
type scribeResponse struct {
	LanguageCode        string       `json:"language_code"`
	LanguageProbability float64      `json:"language_probability"`
	Text                string       `json:"text"`
	Words               []scribeWord `json:"words"`
}

// scribeWord is one entry of the words array. Type distinguishes real words
// from spacing and audio-event annotations.
type scribeWord struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r scribeResponse) transcript(d time.Duration) stt.Transcript {
	t := stt.Transcript{
		Text:       strings.TrimSpace(r.Text),
		Confidence: r.LanguageProbability,
		Language:   r.LanguageCode,
		Duration:   d,
	}
	for _, w := range r.Words {
		if w.Type != "word" {
			continue
		}
		t.Words = append(t.Words, stt.WordDetail{
			Word:  w.Text,
			Start: time.Duration(w.Start * float64(time.Second)),
			End:   time.Duration(w.End * float64(time.Second)),
		})
	}
	return t
}
