// Package stt transcribes uploaded audio with Google Cloud Speech-to-Text.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/EasterCompany/dex-sylvr-service/config"
	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/EasterCompany/dex-sylvr-service/metrics"
	"github.com/EasterCompany/dex-sylvr-service/worker"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const (
	// maxSyncDuration and maxSyncBytes bound what synchronous Recognize accepts.
	maxSyncDuration = 55 * time.Second
	maxSyncBytes    = 1 << 20
)

// Recognizer is the subset of the Speech API the transcriber uses.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
	Close() error
}

// STT is the speech-to-text client
type STT struct {
	recognizer   Recognizer
	language     string
	alternatives []string
	pool         *worker.WorkerPool
}

// New creates a Google Cloud Speech client. An API key or credentials file
// from cfg is used when set, otherwise Application Default Credentials.
func New(ctx context.Context, cfg *config.SpeechConfig) (*STT, error) {
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return NewWithRecognizer(&googleRecognizer{client: client}, cfg), nil
}

// NewWithRecognizer builds an STT around any Recognizer and starts its
// worker pool.
func NewWithRecognizer(rec Recognizer, cfg *config.SpeechConfig) *STT {
	pool := worker.New(cfg.Workers, cfg.QueueSize)
	pool.Start()
	language := cfg.LanguageCode
	if language == "" {
		language = "en-US"
	}
	return &STT{
		recognizer:   rec,
		language:     language,
		alternatives: cfg.AlternativeLanguages,
		pool:         pool,
	}
}

// Close stops the worker pool and the speech client connection.
func (s *STT) Close() error {
	s.pool.Stop()
	if s.recognizer != nil {
		return s.recognizer.Close()
	}
	return nil
}

// Transcribe returns the transcript of audio. It runs on the worker pool and
// fails fast with worker.ErrQueueFull when the pool is saturated.
func (s *STT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	format, err := Detect(audio)
	if err != nil {
		if errors.Is(err, ErrEmptyAudio) {
			metrics.Default.ObserveTranscription("empty")
		} else {
			metrics.Default.ObserveTranscription("unsupported")
		}
		return "", err
	}

	// The job may still be running when ctx ends first, so the transcript is
	// only read after Do reports success.
	out := make(chan string, 1)
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		text, err := s.recognize(ctx, audio, format)
		if err != nil {
			return err
		}
		out <- text
		return nil
	})
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		metrics.Default.ObserveTranscription("queue_full")
		return "", err
	case err != nil:
		metrics.Default.ObserveTranscription("error")
		return "", err
	}
	metrics.Default.ObserveTranscription("ok")
	return <-out, nil
}

func (s *STT) recognize(ctx context.Context, audio []byte, format *Format) (string, error) {
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   format.Encoding,
		SampleRateHertz:            format.SampleRate,
		AudioChannelCount:          format.Channels,
		LanguageCode:               s.language,
		AlternativeLanguageCodes:   s.alternatives,
		EnableAutomaticPunctuation: true,
	}
	content := &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
	}

	start := time.Now()
	var results []*speechpb.SpeechRecognitionResult
	if isShort(audio, format) {
		resp, err := s.recognizer.Recognize(ctx, &speechpb.RecognizeRequest{Config: cfg, Audio: content})
		if err != nil {
			return "", fmt.Errorf("could not recognize %s audio: %w", format.Name, err)
		}
		results = resp.GetResults()
	} else {
		resp, err := s.recognizer.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{Config: cfg, Audio: content})
		if err != nil {
			return "", fmt.Errorf("could not recognize long %s audio: %w", format.Name, err)
		}
		results = resp.GetResults()
	}

	transcript := joinResults(results)
	logger.L().Debug("transcribed audio",
		zap.String("format", format.Name),
		zap.Int("bytes", len(audio)),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return transcript, nil
}

func isShort(audio []byte, format *Format) bool {
	if format.Duration > 0 {
		return format.Duration <= maxSyncDuration
	}
	return len(audio) <= maxSyncBytes
}

// joinResults keeps the top alternative of each result.
func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// googleRecognizer adapts *speech.Client to Recognizer.
type googleRecognizer struct {
	client *speech.Client
}

var retryUnavailable = gax.WithRetry(func() gax.Retryer {
	return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
		Initial:    250 * time.Millisecond,
		Max:        4 * time.Second,
		Multiplier: 2,
	})
})

func (g *googleRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return g.client.Recognize(ctx, req, retryUnavailable)
}

func (g *googleRecognizer) LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := g.client.LongRunningRecognize(ctx, req, retryUnavailable)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (g *googleRecognizer) Close() error {
	return g.client.Close()
}
