package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/perkshq/perks/internal/account"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Account string
	JSON    bool
}

// NewRootCommand creates the perksctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "perksctl",
		Short:         "Control a running perksd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Account = account.Resolve(opts.Account)
			return account.ValidateName(opts.Account)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Account, "account", "", "account name (overrides config default)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "output in JSON format")

	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newNetworkCommand(opts))
	cmd.AddCommand(newRefreshCommand(opts))
	cmd.AddCommand(newConversationsCommand(opts))
	cmd.AddCommand(newMessagesCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newBusinessesCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))
	cmd.AddCommand(newCacheCommand(opts))

	return cmd
}

// connect builds a client for the resolved account and a bounded context.
func connect(opts *RootOptions) (*Client, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	return NewClient(account.SocketPath(opts.Account)), ctx, cancel
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTimestamp(unixMillis int64) string {
	if unixMillis == 0 {
		return "-"
	}
	return time.UnixMilli(unixMillis).Local().Format("2006-01-02 15:04")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
