// Native inference through the whisper.cpp CGO bindings. Building this
// file needs libwhisper.a and whisper.h on the toolchain search path
// (LIBRARY_PATH / C_INCLUDE_PATH); see the whisper.cpp build docs.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs whisper.cpp in-process, with no server between the
// pipeline and the model. The model weights load once and stay resident;
// every Transcribe call builds a fresh inference context on top of them,
// so concurrent calls do not share mutable state.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption configures a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default transcription language ("en", "de",
// "auto", ...). A segment that names its own Language wins over this.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath and returns a provider
// backed by it. Close releases the model.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: open model %q: %w", modelPath, err)
	}

	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close unloads the model. The provider is unusable afterwards.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe implements stt.Provider. The segment is downmixed and resampled
// to the model's 16 kHz mono input format first. whisper.cpp cannot abort a
// running inference, so ctx is only checked between phases; bound latency by
// bounding segment length, not by the context deadline.
func (p *NativeProvider) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	if len(seg.PCM) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	lang := seg.Language
	if lang == "" {
		lang = p.language
	}

	pcm := seg.PCM
	if seg.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if seg.SampleRate != whisperlib.SampleRate {
		pcm = audio.ResampleMono16(pcm, seg.SampleRate, whisperlib.SampleRate)
	}

	wc, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: new inference context: %w", err)
	}
	if err := wc.SetLanguage(lang); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: language %q: %w", lang, err)
	}

	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if err := wc.Process(pcmToFloat32(pcm), nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: inference: %w", err)
	}

	text, err := collectText(wc)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{
		Text:     text,
		Language: lang,
		Duration: seg.Duration(),
	}, nil
}

// collectText joins the trimmed segment texts whisper emits for one inference.
func collectText(wc whisperlib.Context) (string, error) {
	var sb strings.Builder
	for {
		segment, err := wc.NextSegment()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(segment.Text))
	}
}
