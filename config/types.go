package config

// AllConfig is the aggregate of every config file the service reads.
type AllConfig struct {
	Service *ServiceConfig `validate:"required"`
	LLM     *LLMConfig     `validate:"required"`
	Mongo   *MongoConfig   `validate:"required"`
	Cache   *CacheConfig   `validate:"required"`
}

// ServiceConfig is service.json
type ServiceConfig struct {
	Server ServerConfig `json:"server"`
	Speech SpeechConfig `json:"speech"`
	TTS    TTSConfig    `json:"tts"`
	Chat   ChatConfig   `json:"chat"`
	Log    LogConfig    `json:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port" validate:"min=1,max=65535"`
	MaxUploadMB         int    `json:"max_upload_mb" validate:"min=1"`
	HealthCheckSeconds  int    `json:"health_check_seconds" validate:"min=1"`
	ShutdownTimeoutSecs int    `json:"shutdown_timeout_seconds" validate:"min=1"`
}

// SpeechConfig holds speech-to-text settings.
type SpeechConfig struct {
	CredentialsFile      string   `json:"credentials_file"`
	APIKey               string   `json:"api_key"`
	LanguageCode         string   `json:"language_code" validate:"required"`
	AlternativeLanguages []string `json:"alternative_languages"`
	Workers              int      `json:"workers" validate:"min=1"`
	QueueSize            int      `json:"queue_size" validate:"min=1"`
}

// TTSConfig holds text-to-speech settings.
type TTSConfig struct {
	CredentialsFile string `json:"credentials_file"`
	APIKey          string `json:"api_key"`
	DefaultLanguage string `json:"default_language" validate:"required"`
	DefaultRegion   string `json:"default_region" validate:"required"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes" validate:"min=0"`
}

// ChatConfig holds websocket chat settings.
type ChatConfig struct {
	AppName          string  `json:"app_name" validate:"required"`
	SampleCollection string  `json:"sample_collection" validate:"required"`
	SampleSize       int     `json:"sample_size" validate:"min=1"`
	HistoryTurns     int     `json:"history_turns" validate:"min=0"`
	MessagesPerSec   float64 `json:"messages_per_second" validate:"gt=0"`
	MessageBurst     int     `json:"message_burst" validate:"min=1"`
	PingSeconds      int     `json:"ping_seconds" validate:"min=1"`
	SessionTTLMins   int     `json:"session_ttl_minutes" validate:"min=1"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `json:"level" validate:"oneof=debug info warn error"`
	MirrorRedis bool   `json:"mirror_redis"`
}

// LLMConfig is llm.json
type LLMConfig struct {
	Provider         string                 `json:"provider" validate:"oneof=gemini openai ollama"`
	GoogleAPIKey     string                 `json:"google_api_key"`
	OpenAIAPIKey     string                 `json:"openai_api_key"`
	OpenAIBaseURL    string                 `json:"openai_base_url"`
	OllamaURL        string                 `json:"ollama_url"`
	DefaultModel     string                 `json:"default_model" validate:"required"`
	Temperature      float32                `json:"temperature" validate:"min=0,max=2"`
	MaxQueryAttempts int                    `json:"max_query_attempts" validate:"min=1"`
	Agents           map[string]AgentConfig `json:"agents"`
}

// AgentConfig overrides one pipeline agent.
type AgentConfig struct {
	Model       string `json:"model"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

// MongoConfig is mongo.json
type MongoConfig struct {
	URI               string `json:"uri" validate:"required"`
	Database          string `json:"database" validate:"required"`
	ConnectTimeoutSec int    `json:"connect_timeout_seconds" validate:"min=1"`
	QueryTimeoutSec   int    `json:"query_timeout_seconds" validate:"min=1"`
	MaxResults        int    `json:"max_results" validate:"min=1"`
}

// CacheConfig is cache.json
type CacheConfig struct {
	Local *ConnectionConfig `json:"local"`
}

// ConnectionConfig holds a Redis connection.
type ConnectionConfig struct {
	Addr     string `json:"addr"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}
