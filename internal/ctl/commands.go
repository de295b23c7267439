package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(st)
			}
			fmt.Printf("State:   %s\n", st.State)
			fmt.Printf("Online:  %v\n", st.Online)
			fmt.Printf("Pending: %d\n", st.Pending)
			fmt.Printf("Failed:  %d\n", st.Failed)
			return nil
		},
	}
}

func newNetworkCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network <online|offline>",
		Short: "Notify the daemon of a connectivity change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var online bool
			switch args[0] {
			case "online":
				online = true
			case "offline":
				online = false
			default:
				return fmt.Errorf("expected online or offline, got %q", args[0])
			}
			c, ctx, cancel := connect(opts)
			defer cancel()
			if err := c.SetNetwork(ctx, online); err != nil {
				return err
			}
			fmt.Printf("network set to %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func newRefreshCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Trigger a cache refresh and queue drain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			if err := c.Refresh(ctx); err != nil {
				return err
			}
			fmt.Println("refresh started")
			return nil
		},
	}
}

func newConversationsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List cached conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			convs, err := c.Conversations(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(convs)
			}
			if len(convs) == 0 {
				fmt.Println("no cached conversations")
				return nil
			}
			for _, conv := range convs {
				fmt.Printf("%-24s  %s  %s\n", conv.ID, formatTimestamp(conv.LastActivityAt), truncate(conv.LastMessagePreview, 60))
			}
			return nil
		},
	}
}

func newMessagesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "List cached messages in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			msgs, err := c.Messages(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(msgs)
			}
			if len(msgs) == 0 {
				fmt.Println("no cached messages")
				return nil
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %-10s %s\n", formatTimestamp(m.CreatedAt), m.Status, truncate(m.Body, 80))
			}
			return nil
		},
	}
}

func newSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <message>",
		Short: "Queue a message for delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			entry, err := c.Send(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(entry)
			}
			fmt.Printf("queued %s\n", entry.Key)
			return nil
		},
	}
}

func newQueueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued sends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			entries, err := c.Queue(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%-36s  %-8s  attempts=%d  %s", e.Key, e.Status, e.Attempts, truncate(e.Body, 40))
				if e.LastError != "" {
					line += "  (" + e.LastError + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <key>",
		Short: "Retry a failed queued send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			if err := c.Retry(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("retrying %s\n", args[0])
			return nil
		},
	}
}

func newBusinessesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "businesses",
		Short: "List cached businesses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			businesses, err := c.Businesses(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(businesses)
			}
			if len(businesses) == 0 {
				fmt.Println("no cached businesses")
				return nil
			}
			for _, b := range businesses {
				fmt.Printf("%-24s  %-16s  offers=%d  %s\n", b.ID, b.Category, b.ActiveOffers, b.Name)
			}
			return nil
		},
	}
}

func newSearchCommand(opts *RootOptions) *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			results, err := c.Search(ctx, args[0], conversation)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(results)
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%-24s  %s\n", r.Message.ConversationID, r.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "restrict search to one conversation")
	return cmd
}

func newCacheCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			stats, err := c.Stats(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputJSON(stats)
			}
			fmt.Printf("Conversations: %d\n", stats.Conversations)
			fmt.Printf("With messages: %d\n", stats.ConversationsWithMessages)
			fmt.Printf("Businesses:    %d\n", stats.Businesses)
			fmt.Printf("Queued sends:  %d\n", stats.QueuedSends)
			fmt.Printf("Estimated:     %d bytes\n", stats.EstimatedBytes)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [conversation-id]",
		Short: "Clear the cache, or one conversation's slice of it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel := connect(opts)
			defer cancel()
			if len(args) == 1 {
				if err := c.ClearConversation(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("cleared cache for %s\n", args[0])
				return nil
			}
			if err := c.ClearCache(ctx); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	})

	return cmd
}
