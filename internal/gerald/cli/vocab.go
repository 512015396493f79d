package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/gerald/internal/gerald/config"
	"github.com/bdobrica/gerald/internal/gerald/persist"
	"github.com/bdobrica/gerald/internal/gerald/store"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// offlineVocab is the configured vocabulary backend opened without the bot.
type offlineVocab struct {
	db        *store.Store
	persister persist.Persister
	store     *vocab.Store
	learner   *vocab.Learner
}

func openVocabulary(ctx context.Context, s settings, c *config.Config) (*offlineVocab, error) {
	v := &offlineVocab{}
	if s.VocabBackend == persist.BackendSQLite {
		db, err := store.New(s.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		v.db = db
	}
	p, err := persist.Open(s.VocabBackend, s.VocabPath, v.db)
	if err != nil {
		v.Close()
		return nil, err
	}
	v.persister = p
	v.store, err = vocab.Load(ctx, p, c.Vocabulary.Seed, vocab.WithCapacity(c.Vocabulary.Capacity))
	if err != nil {
		v.Close()
		return nil, err
	}
	v.learner = vocab.NewLearner(v.store, p, vocab.LearnerConfig{
		SaveEvery: 1,
		ResetSeed: c.Vocabulary.ResetSeed,
		Tokenizer: c.Tokenizer(),
	})
	return v, nil
}

func (v *offlineVocab) Close() error {
	var err error
	if v.persister != nil {
		err = v.persister.Close()
	}
	if v.db != nil {
		if cerr := v.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// withVocabulary loads settings, config and vocabulary, runs fn and closes
// everything.
func withVocabulary(cmd *cobra.Command, fn func(c *config.Config, v *offlineVocab) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	c, err := s.loadConfig()
	if err != nil {
		return err
	}
	v, err := openVocabulary(cmd.Context(), s, c)
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(c, v)
}

func newVocabCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect or edit the learned vocabulary",
	}
	cmd.AddCommand(newVocabShowCommand(), newVocabTeachCommand(), newVocabResetCommand(), newVocabExportCommand())
	return cmd
}

func newVocabShowCommand() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print vocabulary size and the most frequent words",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVocabulary(cmd, func(_ *config.Config, v *offlineVocab) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d words", v.store.Len())
				if t := v.store.LastUpdated(); !t.IsZero() {
					fmt.Fprintf(out, ", last updated %s", t.Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintln(out)
				for _, wc := range v.store.Top(top) {
					fmt.Fprintf(out, "%6d  %s\n", wc.Count, wc.Word)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "number of words to list")
	return cmd
}

func newVocabTeachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "teach <text>...",
		Short: "Learn words from text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVocabulary(cmd, func(_ *config.Config, v *offlineVocab) error {
				added := v.learner.Learn(cmd.Context(), strings.Join(args, " "))
				if err := v.learner.Flush(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "learned %d new words (%d total)\n", added, v.store.Len())
				return nil
			})
		},
	}
}

func newVocabResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace the vocabulary with the reset seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVocabulary(cmd, func(c *config.Config, v *offlineVocab) error {
				if err := v.learner.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "vocabulary reset to: %s\n", strings.Join(c.Vocabulary.ResetSeed, ", "))
				return nil
			})
		},
	}
}

func newVocabExportCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the vocabulary as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVocabulary(cmd, func(_ *config.Config, v *offlineVocab) error {
				data, err := json.MarshalIndent(v.store.Snapshot(), "", "  ")
				if err != nil {
					return err
				}
				data = append(data, '\n')
				if outPath == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return persist.WriteFileAtomic(outPath, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

