package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your conversations",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			convs, err := a.api.List(ctx)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Fprintln(a.out, "No conversations")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tTITLE")
			for _, c := range convs {
				created := "-"
				if !c.CreatedAt.IsZero() {
					created = c.CreatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, created, c.Title)
			}
			return w.Flush()
		}),
	}
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <prompt>",
		Short: "Start a conversation with a first prompt and join it",
		Long: `Creates a conversation, then opens its stream. The prompt is sent as soon
as the channel is open and the session continues as with chat.`,
		Args: cobra.MinimumNArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return fmt.Errorf("prompt must not be blank")
			}
			conv, err := a.api.Create(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created conversation %s\n", conv.ID)
			a.pending.Put(conv.ID, prompt)
			return chat(ctx, a, conv.ID, nil)
		}),
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			if err := a.api.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted conversation %s\n", args[0])
			return nil
		}),
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <id>",
		Short: "Join a conversation",
		Long: `Loads the conversation history, opens its stream and reads prompts from
standard input, one per line. Responses are printed as they stream. Type
/quit to leave.`,
		Args: cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			conv, err := a.api.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return chat(ctx, a, conv.ID, conv.Turns())
		}),
	}
}
