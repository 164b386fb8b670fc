// Package tts turns text into MP3 audio with Google Cloud Text-to-Speech.
package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/EasterCompany/dex-sylvr-service/cache"
	"github.com/EasterCompany/dex-sylvr-service/config"
	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/EasterCompany/dex-sylvr-service/metrics"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// ErrEmptyText is returned when there is nothing to say.
var ErrEmptyText = errors.New("text is empty")

// Synthesizer is the subset of the Text-to-Speech API used here.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// AudioCache stores rendered audio.
type AudioCache interface {
	SaveAudio(key string, data []byte, ttl time.Duration) error
	GetAudio(key string) ([]byte, error)
}

// TTS synthesises speech and caches the result.
type TTS struct {
	client          Synthesizer
	cache           AudioCache
	cacheTTL        time.Duration
	defaultLanguage string
	defaultRegion   string
}

// New creates a Text-to-Speech client from cfg. c may be nil.
func New(ctx context.Context, cfg *config.TTSConfig, c AudioCache) (*TTS, error) {
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}
	return NewWithClient(client, cfg, c), nil
}

// NewWithClient builds a TTS around any Synthesizer.
func NewWithClient(client Synthesizer, cfg *config.TTSConfig, c AudioCache) *TTS {
	lang := cfg.DefaultLanguage
	if lang == "" {
		lang = "en"
	}
	region := cfg.DefaultRegion
	if region == "" {
		region = "US"
	}
	return &TTS{
		client:          client,
		cache:           c,
		cacheTTL:        time.Duration(cfg.CacheTTLMinutes) * time.Minute,
		defaultLanguage: lang,
		defaultRegion:   region,
	}
}

func (t *TTS) Close() error {
	return t.client.Close()
}

// LanguageCode expands a bare language ("en") with the default region
// ("en-US"). Codes that already carry a region pass through.
func (t *TTS) LanguageCode(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = t.defaultLanguage
	}
	if strings.Contains(lang, "-") {
		return lang
	}
	return strings.ToLower(lang) + "-" + strings.ToUpper(t.defaultRegion)
}

// Synthesize returns MP3 audio for text spoken in lang.
func (t *TTS) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	code := t.LanguageCode(lang)
	key := cacheKey(code, text)

	if t.cache != nil && t.cacheTTL > 0 {
		data, err := t.cache.GetAudio(key)
		switch {
		case err == nil:
			metrics.Default.ObserveSynthesis("cache")
			return data, nil
		case !errors.Is(err, cache.ErrMiss):
			logger.Error("reading synthesized audio from cache", err)
		}
	}

	var audio []byte
	for _, chunk := range splitText(text, maxChunkBytes) {
		resp, err := t.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: code,
				SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
			},
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("could not synthesize speech: %w", err)
		}
		// MP3 frames are self-delimiting, so chunks concatenate cleanly.
		audio = append(audio, resp.GetAudioContent()...)
	}
	metrics.Default.ObserveSynthesis("api")

	if t.cache != nil && t.cacheTTL > 0 {
		if err := t.cache.SaveAudio(key, audio, t.cacheTTL); err != nil {
			logger.Error("saving synthesized audio to cache", err)
		}
	}
	return audio, nil
}

func cacheKey(lang, text string) string {
	sum := sha256.Sum256([]byte(lang + "\x00" + text))
	return "tts:" + hex.EncodeToString(sum[:])
}
