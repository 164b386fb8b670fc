package endpoints

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/EasterCompany/dex-sylvr-service/services"
	"github.com/EasterCompany/dex-sylvr-service/stt"
	"github.com/EasterCompany/dex-sylvr-service/tts"
	"github.com/EasterCompany/dex-sylvr-service/worker"
	"github.com/gin-gonic/gin"
)

// TranscribeHandler handles POST /transcribe with a multipart "file" field.
func TranscribeHandler(s services.STTService, status *services.StatusServer, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "file is too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": "file is required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read file"})
			return
		}
		audio, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read file"})
			return
		}

		text, err := s.Transcribe(c.Request.Context(), audio)
		if err != nil {
			_ = c.Error(err)
			c.JSON(transcribeStatus(err), gin.H{"detail": err.Error()})
			return
		}
		if status != nil {
			status.IncrementTranscriptions()
		}
		c.JSON(http.StatusOK, gin.H{"transcribed_text": text})
	}
}

func transcribeStatus(err error) int {
	switch {
	case errors.Is(err, stt.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, stt.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// TTSHandler handles POST /tts with form fields "text" and optional "lang".
func TTSHandler(s services.TTSService, status *services.StatusServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		text := c.PostForm("text")
		if strings.TrimSpace(text) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "text is required"})
			return
		}

		audio, err := s.Synthesize(c.Request.Context(), text, c.PostForm("lang"))
		if err != nil {
			_ = c.Error(err)
			code := http.StatusBadGateway
			if errors.Is(err, tts.ErrEmptyText) {
				code = http.StatusBadRequest
			}
			c.JSON(code, gin.H{"detail": err.Error()})
			return
		}
		if status != nil {
			status.IncrementSyntheses()
		}
		c.Header("Content-Disposition", `attachment; filename="speech.mp3"`)
		c.Data(http.StatusOK, "audio/mpeg", audio)
	}
}
