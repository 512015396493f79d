// Package cli implements the gerald command line.
//
// Process-level settings come from environment variables:
//
//	MATRIX_HOMESERVER      - Matrix homeserver URL; unset runs without Matrix
//	MATRIX_USER_ID         - bot's Matrix ID (e.g. "@gerald:example.org")
//	MATRIX_ACCESS_TOKEN    - bot's Matrix access token
//	MATRIX_ROOMS           - comma-separated room IDs to join on start
//	MATRIX_ACCEPT_INVITES  - accept invites to other rooms (default false)
//	GERALD_CONFIG_FILE     - behavioural YAML config, hot-reloaded
//	GERALD_DB_PATH         - SQLite state database (default "gerald.db")
//	GERALD_VOCAB_BACKEND   - "json" (default), "sqlite" or "bolt"
//	GERALD_VOCAB_PATH      - vocabulary file for json/bolt (default "vocabulary.json")
//	GERALD_JOURNAL_FILE    - conversation journal; unset disables it
//	GERALD_CONTROL_ADDR    - control server address; unset disables it
//	GERALD_CONTROL_TOKEN   - bearer token for the control server
//	GERALD_FLUSH_INTERVAL  - periodic save interval (default 30s)
//	LLM_PROVIDER           - overrides llm.provider from the config file
//	LLM_BASE_URL           - overrides llm.base_url
//	LLM_MODEL              - overrides llm.model
//	LLM_API_KEY            - API key for OpenAI-compatible servers
//	LOG_LEVEL              - "debug", "info", "warn", "error" (default "info")
//	LOG_FORMAT             - "text" or "json" (default "text")
package cli

import (
	"github.com/spf13/cobra"

	"github.com/bdobrica/gerald/common/version"
	"github.com/bdobrica/gerald/internal/gerald/observability"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gerald",
		Short:         "Gerald, the chat bot that only says words it has heard",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			observability.Secrets.Add(s.Matrix.AccessToken, s.LLMAPIKey, s.ControlToken)
			observability.Setup(s.LogLevel, s.LogFormat)
			return nil
		},
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newVocabCommand())
	root.AddCommand(newSayCommand())
	root.AddCommand(newCheckCommand())
	root.AddCommand(newConfigCommand())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
