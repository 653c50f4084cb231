// Package openai implements stt.Provider on the OpenAI audio transcription
// API.
//
// Each Transcribe call wraps the segment in a WAV container and submits it
// through the official client's Audio.Transcriptions service. A segment
// language passes through as the request language; segment hints become the
// transcription prompt, which biases the model toward that vocabulary. The
// API returns plain text only, so transcripts carry no confidence or word
// timing.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider transcribes segments through the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// settings collects the SDK request options the Options contribute.
type settings struct {
	reqOpts []option.RequestOption
}

// Option adjusts the API client New builds.
type Option func(*settings)

// WithBaseURL points the client at a different endpoint, e.g. a proxy or an
// API-compatible local server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithBaseURL(url)) }
}

// WithOrganization stamps every request with an OpenAI organization ID.
func WithOrganization(org string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithOrganization(org)) }
}

// WithTimeout bounds each request attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithRequestTimeout(d)) }
}

// New builds a Provider for the given transcription model, e.g. "whisper-1"
// or "gpt-4o-mini-transcribe".
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if model == "" {
		return nil, errors.New("openai: model is empty")
	}

	s := settings{reqOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, o := range opts {
		o(&s)
	}

	return &Provider{client: oai.NewClient(s.reqOpts...), model: model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	if len(seg.PCM) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	wav := audio.EncodeWAV(seg.PCM, seg.SampleRate, seg.Channels)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if seg.Language != "" {
		params.Language = oai.String(seg.Language)
	}
	if len(seg.Hints) > 0 {
		params.Prompt = oai.String(strings.Join(seg.Hints, ", "))
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcription failed: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: seg.Language,
		Duration: seg.Duration(),
	}, nil
}
