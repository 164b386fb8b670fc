package config

// DefaultServiceConfig returns the settings written to a fresh service.json.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8000,
			MaxUploadMB:         25,
			HealthCheckSeconds:  30,
			ShutdownTimeoutSecs: 10,
		},
		Speech: SpeechConfig{
			LanguageCode: "en-US",
			Workers:      2,
			QueueSize:    16,
		},
		TTS: TTSConfig{
			DefaultLanguage: "en",
			DefaultRegion:   "US",
			CacheTTLMinutes: 60,
		},
		Chat: ChatConfig{
			AppName:          "SylvrDemo",
			SampleCollection: "customers",
			SampleSize:       5,
			HistoryTurns:     10,
			MessagesPerSec:   1,
			MessageBurst:     3,
			PingSeconds:      30,
			SessionTTLMins:   120,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultLLMConfig returns the settings written to a fresh llm.json.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:         "gemini",
		OllamaURL:        "http://localhost:11434",
		DefaultModel:     "gemini-2.0-flash",
		Temperature:      0.2,
		MaxQueryAttempts: 2,
		Agents:           map[string]AgentConfig{},
	}
}

// DefaultMongoConfig returns the settings written to a fresh mongo.json.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		Database:          "sample_analytics",
		ConnectTimeoutSec: 10,
		QueryTimeoutSec:   30,
		MaxResults:        50,
	}
}

// DefaultCacheConfig returns the settings written to a fresh cache.json.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Local: &ConnectionConfig{Addr: "localhost:6379"},
	}
}
