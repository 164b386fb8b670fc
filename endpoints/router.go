// Package endpoints is the HTTP surface of the service: speech upload and
// synthesis, the chat websocket, and the status and metrics routes.
package endpoints

import (
	"github.com/EasterCompany/dex-sylvr-service/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMaxUpload = 25 << 20

// Deps holds everything the routes serve.
type Deps struct {
	STT            services.STTService
	TTS            services.TTSService
	Chat           *ChatHandler
	Status         *services.StatusServer
	MaxUploadBytes int64
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), CORS())

	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	r.MaxMultipartMemory = maxUpload

	if d.Status != nil {
		d.Status.Register(r)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if d.STT != nil {
		r.POST("/transcribe", TranscribeHandler(d.STT, d.Status, maxUpload))
	}
	if d.TTS != nil {
		r.POST("/tts", TTSHandler(d.TTS, d.Status))
	}
	if d.Chat != nil {
		r.GET("/chat", d.Chat.Handle)
	}
	return r
}
