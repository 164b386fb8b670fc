package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/EasterCompany/dex-sylvr-service/agent"
	"github.com/EasterCompany/dex-sylvr-service/cache"
	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/EasterCompany/dex-sylvr-service/database"
	"github.com/EasterCompany/dex-sylvr-service/endpoints"
	"github.com/EasterCompany/dex-sylvr-service/llm"
	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/EasterCompany/dex-sylvr-service/metrics"
	"github.com/EasterCompany/dex-sylvr-service/services"
	"github.com/EasterCompany/dex-sylvr-service/session"
	"github.com/EasterCompany/dex-sylvr-service/stt"
	"github.com/EasterCompany/dex-sylvr-service/tts"
	"github.com/EasterCompany/dex-sylvr-service/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Injected with -ldflags at build time.
var (
	version   string
	branch    string
	commit    string
	buildDate string
	arch      string
)

var (
	configDir string
	port      int
)

var rootCmd = &cobra.Command{
	Use:   "dex-sylvr-service",
	Short: "Speech and data-chat backend for Dexter",
	Long: `dex-sylvr-service transcribes uploaded audio, synthesizes speech, and
answers questions about a MongoDB dataset over a websocket by planning,
querying and summarizing with an LLM.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(utils.GetVersion().Str)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default $DEX_CONFIG_DIR or ~/Dexter/config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port, overrides service.json")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	utils.SetVersion(version, branch, commit, buildDate, arch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadAllConfigs(configDir)
	if err != nil {
		return fmt.Errorf("fatal error loading config: %w", err)
	}
	if port != 0 {
		cfg.Service.Server.Port = port
	}

	// 2. Initialize Cache
	localCache, cacheErr := cache.New(cfg.Cache.Local)

	// 3. Initialize Logger
	var sinks []io.Writer
	if localCache != nil && cfg.Service.Log.MirrorRedis {
		sinks = append(sinks, cache.NewLogWriter(localCache))
	}
	if err := logger.Init(cfg.Service.Log.Level, sinks...); err != nil {
		return err
	}
	defer logger.Sync()
	metrics.Init()
	log := logger.Named("boot")
	log.Info("starting", zap.String("version", utils.GetVersion().Str))
	if cacheErr != nil {
		logger.Error("Failed to initialize local cache", cacheErr)
	}
	if localCache != nil {
		defer func() { _ = localCache.Close() }()
	}

	// 4. Perform Boot-time Cleanup
	if localCache != nil {
		cleaned, err := localCache.CleanAllAudio()
		if err != nil {
			logger.Error("Error cleaning up cached audio", err)
		} else {
			log.Info("cleanup complete", zap.Int64("audio_keys", cleaned))
		}
	}

	// 5. Connect to MongoDB
	store, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()
	log.Info("mongo connected", zap.String("database", store.Name()))

	// 6. Initialize Speech Services
	recognizer, err := stt.New(ctx, &cfg.Service.Speech)
	if err != nil {
		return err
	}
	defer func() { _ = recognizer.Close() }()

	var audioCache tts.AudioCache
	if localCache != nil {
		audioCache = localCache
	}
	synthesizer, err := tts.New(ctx, &cfg.Service.TTS, audioCache)
	if err != nil {
		return err
	}
	defer func() { _ = synthesizer.Close() }()

	// 7. Initialize the LLM Pipeline
	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	chatCfg := cfg.Service.Chat
	sessions := session.NewInMemoryService()
	if localCache != nil {
		sessions.WithMirror(localCache, time.Duration(chatCfg.SessionTTLMins)*time.Minute)
	}
	runner := &agent.Runner{
		AppName:      chatCfg.AppName,
		Agent:        agent.NewPipeline(cfg.LLM, store, cfg.Mongo.MaxResults),
		Sessions:     sessions,
		Provider:     provider,
		Temperature:  cfg.LLM.Temperature,
		HistoryTurns: chatCfg.HistoryTurns,
	}

	// 8. Start Health Checks
	health := services.NewHealthChecker(time.Duration(cfg.Service.Server.HealthCheckSeconds) * time.Second)
	health.RegisterService("mongo", cfg.Mongo.Database, store.Ping)
	health.RegisterService("llm", provider.Name(), provider.Ping)
	if localCache != nil {
		health.RegisterService("redis", cfg.Cache.Local.Addr, func(context.Context) error {
			return localCache.Ping()
		})
	}
	health.Start()
	defer health.Stop()
	status := services.NewStatusServer(utils.GetVersion().Str, health)

	// 9. Serve
	gin.SetMode(gin.ReleaseMode)
	router := endpoints.NewRouter(endpoints.Deps{
		STT: recognizer,
		TTS: synthesizer,
		Chat: &endpoints.ChatHandler{
			Pipeline: runner,
			Sessions: sessions,
			Samples:  store,
			Config:   chatCfg,
			Status:   status,
		},
		Status:         status,
		MaxUploadBytes: int64(cfg.Service.Server.MaxUploadMB) << 20,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Service.Server.Host, strconv.Itoa(cfg.Service.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 10. Wait for shutdown signal
	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Service.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
	return nil
}
