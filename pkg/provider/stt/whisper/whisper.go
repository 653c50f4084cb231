// Package whisper provides whisper.cpp-backed STT providers.
//
// Two implementations are available:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference). Nothing is linked in; the server runs wherever it
//     likes.
//   - [NativeProvider] loads the model in-process through the whisper.cpp CGO
//     bindings, eliminating HTTP overhead at the cost of a heavier build.
//
// whisper.cpp is a batch engine, which matches the pipeline's dispatch model
// exactly: each finalized capture segment becomes one inference call.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	transcript, err := p.Transcribe(ctx, seg)
package whisper

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
	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "pt"). Defaults to "en". Segments that carry their own
// Language override this per call.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (60s timeout, sized for
// CPU inference of long segments).
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. Segment hints are forwarded as the
// server's prompt parameter, which biases decoding toward that vocabulary.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	if len(seg.PCM) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	lang := seg.Language
	if lang == "" {
		lang = p.language
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(seg.PCM, seg.SampleRate, seg.Channels)); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
	}
	if err := mw.WriteField("language", lang); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
		}
	}
	if len(seg.Hints) > 0 {
		if err := mw.WriteField("prompt", strings.Join(seg.Hints, ", ")); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, fmt.Errorf("whisper: server returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	if ir.Error != "" {
		return stt.Transcript{}, fmt.Errorf("whisper: inference failed: %s", ir.Error)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(ir.Text),
		Language: lang,
		Duration: seg.Duration(),
	}, nil
}

// inferenceResponse mirrors the JSON body of POST /inference. The server
// reports failures inside a 200 body via the error field.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}
