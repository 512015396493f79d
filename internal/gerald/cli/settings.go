package cli

import (
	"fmt"
	"time"

	"github.com/bdobrica/gerald/common/environment"
	"github.com/bdobrica/gerald/internal/gerald/app"
	"github.com/bdobrica/gerald/internal/gerald/config"
	"github.com/bdobrica/gerald/internal/gerald/matrix"
	"github.com/bdobrica/gerald/internal/gerald/observability"
	"github.com/bdobrica/gerald/internal/gerald/persist"
)

// settings is everything read from the environment.
type settings struct {
	ConfigFile    string
	DatabasePath  string
	VocabBackend  string
	VocabPath     string
	JournalFile   string
	ControlAddr   string
	ControlToken  string
	FlushInterval time.Duration
	Matrix        matrix.Config

	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string

	LogLevel  string
	LogFormat string
}

func loadSettings() (settings, error) {
	env := environment.New()
	s := settings{
		ConfigFile:    env.String("GERALD_CONFIG_FILE", ""),
		DatabasePath:  env.String("GERALD_DB_PATH", "gerald.db"),
		VocabBackend:  env.OneOf("GERALD_VOCAB_BACKEND", persist.BackendJSON, persist.BackendJSON, persist.BackendBolt, persist.BackendSQLite),
		VocabPath:     env.String("GERALD_VOCAB_PATH", "vocabulary.json"),
		JournalFile:   env.String("GERALD_JOURNAL_FILE", ""),
		ControlAddr:   env.String("GERALD_CONTROL_ADDR", ""),
		ControlToken:  env.String("GERALD_CONTROL_TOKEN", ""),
		FlushInterval: env.Duration("GERALD_FLUSH_INTERVAL", app.DefaultFlushInterval),
		Matrix: matrix.Config{
			Homeserver:    env.String("MATRIX_HOMESERVER", ""),
			UserID:        env.String("MATRIX_USER_ID", ""),
			AccessToken:   env.String("MATRIX_ACCESS_TOKEN", ""),
			Rooms:         env.List("MATRIX_ROOMS", nil),
			AcceptInvites: env.Bool("MATRIX_ACCEPT_INVITES", false),
		},
		LLMProvider: env.OneOf("LLM_PROVIDER", "", "ollama", "openai", "none"),
		LLMBaseURL:  env.String("LLM_BASE_URL", ""),
		LLMModel:    env.String("LLM_MODEL", ""),
		LLMAPIKey:   env.String("LLM_API_KEY", ""),
		LogLevel:    env.OneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
		LogFormat:   env.OneOf("LOG_FORMAT", "text", "text", "json"),
	}
	return s, env.Err()
}

// appConfig converts settings for app.New. Matrix credentials are required
// only when a homeserver is configured.
func (s settings) appConfig() (*app.Config, error) {
	if s.Matrix.Homeserver != "" {
		if s.Matrix.UserID == "" || s.Matrix.AccessToken == "" {
			return nil, fmt.Errorf("MATRIX_USER_ID and MATRIX_ACCESS_TOKEN are required when MATRIX_HOMESERVER is set")
		}
		s.Matrix.Log = observability.MatrixLogger(s.LogLevel)
	}
	return &app.Config{
		ConfigFile:    s.ConfigFile,
		DatabasePath:  s.DatabasePath,
		VocabBackend:  s.VocabBackend,
		VocabPath:     s.VocabPath,
		JournalFile:   s.JournalFile,
		Matrix:        s.Matrix,
		LLMAPIKey:     s.LLMAPIKey,
		ControlAddr:   s.ControlAddr,
		ControlToken:  s.ControlToken,
		FlushInterval: s.FlushInterval,
		LLMOverrides: app.LLMOverrides{
			Provider: s.LLMProvider,
			BaseURL:  s.LLMBaseURL,
			Model:    s.LLMModel,
		},
	}, nil
}

// loadConfig reads the behavioural config for offline commands. Without a
// config file the defaults apply.
func (s settings) loadConfig() (*config.Config, error) {
	l := config.NewLoader()
	if s.ConfigFile != "" {
		if err := l.LoadFile(s.ConfigFile); err != nil {
			return nil, err
		}
	}
	return l.Config(), nil
}
