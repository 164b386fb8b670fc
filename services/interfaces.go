package services

import "context"

// STTService turns uploaded audio into text.
type STTService interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TTSService renders text as MP3 audio.
type TTSService interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// Pinger is anything the health checker can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
