package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-duet/pkg/core/duet"
	"github.com/vango-go/vai-duet/pkg/core/media"
)

type Config struct {
	Addr string

	// Gemini credentials and model selection.
	GeminiAPIKey  string
	SpeakingModel string
	FunctionModel string
	SpeakingVoice string
	VideoModel    string
	ImageModel    string
	SpeechModel   string
	SpeechVoice   string

	VideoPollInterval time.Duration
	NotifyQueueSize   int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Studio WebSocket (/v1/studio).
	WSMaxMessageBytes  int64
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSHandshakeTimeout time.Duration
	OutboundQueueSize  int

	// Playback handle store. Total bytes across all cached videos.
	MediaMaxBytes int64

	// Optional request journal. Empty disables it.
	DatabaseURL string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VAI_DUET_ADDR", ":8080"),
		GeminiAPIKey:        envOr("VAI_DUET_GEMINI_API_KEY", envOr("GEMINI_API_KEY", "")),
		SpeakingModel:       envOr("VAI_DUET_SPEAKING_MODEL", duet.DefaultSpeakingModel),
		FunctionModel:       envOr("VAI_DUET_FUNCTION_MODEL", duet.DefaultFunctionModel),
		SpeakingVoice:       envOr("VAI_DUET_SPEAKING_VOICE", duet.DefaultSpeakingVoice),
		VideoModel:          envOr("VAI_DUET_VIDEO_MODEL", media.DefaultVideoModel),
		ImageModel:          envOr("VAI_DUET_IMAGE_MODEL", media.DefaultImageModel),
		SpeechModel:         envOr("VAI_DUET_SPEECH_MODEL", media.DefaultSpeechModel),
		SpeechVoice:         envOr("VAI_DUET_SPEECH_VOICE", media.DefaultSpeechVoice),
		VideoPollInterval:   envDurationOr("VAI_DUET_VIDEO_POLL_INTERVAL", media.DefaultPollInterval),
		NotifyQueueSize:     envIntOr("VAI_DUET_NOTIFY_QUEUE_SIZE", duet.DefaultNotifyQueueSize),
		CORSAllowedOrigins:  make(map[string]struct{}),
		WSMaxMessageBytes:   envInt64Or("VAI_DUET_WS_MAX_MESSAGE_BYTES", 4<<20), // 4 MiB
		WSPingInterval:      envDurationOr("VAI_DUET_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("VAI_DUET_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:  envDurationOr("VAI_DUET_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		OutboundQueueSize:   envIntOr("VAI_DUET_OUTBOUND_QUEUE_SIZE", 256),
		MediaMaxBytes:       envInt64Or("VAI_DUET_MEDIA_MAX_BYTES", 256<<20), // 256 MiB
		DatabaseURL:         envOr("VAI_DUET_DATABASE_URL", ""),
		ReadHeaderTimeout:   envDurationOr("VAI_DUET_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VAI_DUET_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VAI_DUET_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("VAI_DUET_GEMINI_API_KEY (or GEMINI_API_KEY) must be set")
	}
	if cfg.VideoPollInterval <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_VIDEO_POLL_INTERVAL must be > 0")
	}
	if cfg.NotifyQueueSize <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_NOTIFY_QUEUE_SIZE must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.MediaMaxBytes <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_MEDIA_MAX_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VAI_DUET_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	for name, v := range map[string]string{
		"VAI_DUET_SPEAKING_MODEL": cfg.SpeakingModel,
		"VAI_DUET_FUNCTION_MODEL": cfg.FunctionModel,
		"VAI_DUET_VIDEO_MODEL":    cfg.VideoModel,
		"VAI_DUET_IMAGE_MODEL":    cfg.ImageModel,
		"VAI_DUET_SPEECH_MODEL":   cfg.SpeechModel,
	} {
		if strings.ContainsAny(v, " \t") {
			return Config{}, fmt.Errorf("%s must not contain whitespace", name)
		}
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
