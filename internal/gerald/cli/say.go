package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/gerald/internal/gerald/config"
	"github.com/bdobrica/gerald/internal/gerald/generator"
	"github.com/bdobrica/gerald/internal/gerald/validator"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// errRejected is returned by check so the process exits non-zero.
var errRejected = errors.New("rejected")

func newSayCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "say [topic...]",
		Short: "Generate phrases from the learned vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVocabulary(cmd, func(c *config.Config, v *offlineVocab) error {
				gen := generator.New(c.GeneratorConfig(), nil)
				topic := strings.Join(args, " ")
				for i := 0; i < count; i++ {
					fmt.Fprintln(cmd.OutOrStdout(), gen.Generate(v.store, topic))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of phrases")
	return cmd
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <candidate...>",
		Short: "Check whether Gerald could say a phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVocabulary(cmd, func(c *config.Config, v *offlineVocab) error {
				val := validator.New(c.ValidatorConfig())
				var reason validator.Reason
				v.store.View(func(r vocab.Reader) {
					reason = val.Check(strings.Join(args, " "), r)
				})
				if reason != validator.OK {
					fmt.Fprintf(cmd.OutOrStdout(), "rejected: %s\n", reason)
					return fmt.Errorf("check: %w (%s)", errRejected, reason)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}
