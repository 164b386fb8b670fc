package stt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

var (
	// ErrEmptyAudio is returned for a zero-length upload.
	ErrEmptyAudio = errors.New("audio is empty")
	// ErrUnsupportedFormat is returned when the container cannot be identified
	// or carries an encoding the recognizer does not accept.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// wavExtensible is WAVE_FORMAT_EXTENSIBLE.
const wavExtensible = 0xFFFE

// opusRates are the sample rates the recognizer accepts for Opus.
var opusRates = map[int32]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// Format describes an uploaded audio payload.
type Format struct {
	Name       string
	Encoding   speechpb.RecognitionConfig_AudioEncoding
	SampleRate int32
	Channels   int32
	// Duration is known for WAV and Ogg.
	Duration time.Duration
}

// Detect identifies the container from its magic bytes.
func Detect(audio []byte) (*Format, error) {
	switch {
	case len(audio) == 0:
		return nil, ErrEmptyAudio
	case len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE":
		return parseWAV(audio)
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return &Format{Name: "flac", Encoding: speechpb.RecognitionConfig_FLAC}, nil
	case bytes.HasPrefix(audio, []byte("OggS")):
		return parseOgg(audio)
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return &Format{Name: "webm", Encoding: speechpb.RecognitionConfig_WEBM_OPUS, SampleRate: 48000}, nil
	}
	return nil, ErrUnsupportedFormat
}

func parseWAV(audio []byte) (*Format, error) {
	f := &Format{Name: "wav"}
	var byteRate uint32
	var haveFmt bool

	pos := 12
	for pos+8 <= len(audio) {
		id := string(audio[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(audio[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(audio) {
				return nil, fmt.Errorf("%w: truncated wav header", ErrUnsupportedFormat)
			}
			audioFormat := binary.LittleEndian.Uint16(audio[body : body+2])
			f.Channels = int32(binary.LittleEndian.Uint16(audio[body+2 : body+4]))
			f.SampleRate = int32(binary.LittleEndian.Uint32(audio[body+4 : body+8]))
			byteRate = binary.LittleEndian.Uint32(audio[body+8 : body+12])
			bits := binary.LittleEndian.Uint16(audio[body+14 : body+16])
			if audioFormat == wavExtensible {
				// The real format code leads the sub-format GUID.
				if size < 40 || body+26 > len(audio) {
					return nil, fmt.Errorf("%w: truncated wav extensible header", ErrUnsupportedFormat)
				}
				audioFormat = binary.LittleEndian.Uint16(audio[body+24 : body+26])
			}
			switch {
			case audioFormat == 1 && bits == 16:
				f.Encoding = speechpb.RecognitionConfig_LINEAR16
			case audioFormat == 7:
				f.Encoding = speechpb.RecognitionConfig_MULAW
			default:
				return nil, fmt.Errorf("%w: wav format %d with %d-bit samples", ErrUnsupportedFormat, audioFormat, bits)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: wav data before fmt chunk", ErrUnsupportedFormat)
			}
			// Streamed WAVs write 0 or 0xFFFFFFFF as the data size.
			if size <= 0 || body+size > len(audio) {
				size = len(audio) - body
			}
			if byteRate > 0 {
				f.Duration = time.Duration(float64(size) / float64(byteRate) * float64(time.Second))
			}
			return f, nil
		}

		pos = body + size + size%2
	}
	return nil, fmt.Errorf("%w: wav has no data chunk", ErrUnsupportedFormat)
}

// parseOgg reads the OpusHead page and walks the remaining pages for the
// last granule position, which gives the duration.
func parseOgg(audio []byte) (*Format, error) {
	reader, header, err := oggreader.NewWith(bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("%w: ogg stream is not opus: %v", ErrUnsupportedFormat, err)
	}
	f := &Format{Name: "ogg", Encoding: speechpb.RecognitionConfig_OGG_OPUS, SampleRate: 48000, Channels: int32(header.Channels)}
	if rate := int32(header.SampleRate); opusRates[rate] {
		f.SampleRate = rate
	}

	var granule uint64
	for {
		_, page, err := reader.ParseNextPage()
		if err != nil {
			break
		}
		// All ones marks a page on which no packet ends.
		if page.GranulePosition != ^uint64(0) && page.GranulePosition > granule {
			granule = page.GranulePosition
		}
	}
	f.Duration = opusDuration(granule, uint64(header.PreSkip))
	return f, nil
}

// opusDuration converts a final granule position to playback time. Opus
// granule positions always count 48 kHz samples.
func opusDuration(granule, preSkip uint64) time.Duration {
	if granule <= preSkip {
		return 0
	}
	samples := granule - preSkip
	secs := samples / 48000
	if secs >= uint64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs)*time.Second + time.Duration(samples%48000)*time.Second/48000
}
