package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"chatline/internal/app"
	app_errors "chatline/internal/errors"
	"chatline/internal/model"
	"chatline/internal/service"
)

func newConversationsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect and remove stored conversations",
	}
	cmd.AddCommand(newConversationsListCmd(opts))
	cmd.AddCommand(newConversationsShowCmd(opts))
	cmd.AddCommand(newConversationsRmCmd(opts))
	return cmd
}

func newConversationsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(store *app.Store) error {
				return listConversations(cmd.Context(), cmd.OutOrStdout(), store)
			})
		},
	}
}

func listConversations(ctx context.Context, w io.Writer, store *app.Store) error {
	convs, err := store.List(ctx)
	if err != nil {
		return err
	}
	current, err := store.CurrentID(ctx)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No conversations stored."))
		return nil
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	fmt.Fprintln(w, headerStyle.Render(column("  ID", 44)+column("TITLE", 42)+column("MODEL", 30)+column("MSGS", 6)+"UPDATED"))
	for _, c := range convs {
		marker := "  "
		if c.ID == current {
			marker = "* "
		}
		line := column(marker+c.ID, 44) + column(c.Title, 42) + column(c.Model, 30) +
			column(fmt.Sprint(len(c.Messages)), 6) + c.UpdatedAt.Local().Format("2006-01-02 15:04")
		if c.ID == current {
			line = currentStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func newConversationsShowCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation as a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(store *app.Store) error {
				conv, err := findConversation(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				md := transcript(conv, opts.cfg.Username)
				if raw {
					_, err := io.WriteString(cmd.OutOrStdout(), md)
					return err
				}
				out, err := renderMarkdown(md)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")
	return cmd
}

func findConversation(ctx context.Context, store *app.Store, id string) (*model.Conversation, error) {
	convs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].ID == id {
			return &convs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, id)
}

// transcript renders a conversation as markdown with one section per message.
func transcript(conv *model.Conversation, username string) string {
	if username == "" {
		username = "You"
	}
	fallback := service.FallbackLabel(conv.Model)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	for _, msg := range conv.Messages {
		author := username
		if msg.Role != model.RoleUser {
			author = msg.ModelLabel
			if author == "" {
				author = fallback
			}
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", author, msg.TextContent())
		if n := len(msg.Images()); n > 0 {
			fmt.Fprintf(&b, "_%d image(s) attached_\n\n", n)
		}
	}
	return b.String()
}

func newConversationsRmCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return opts.withStore(cmd.Context(), func(store *app.Store) error {
				conv, err := findConversation(cmd.Context(), store, id)
				if err != nil {
					return err
				}
				if !yes {
					confirm := false
					prompt := &survey.Confirm{Message: fmt.Sprintf("Delete conversation %q?", conv.Title)}
					if err := survey.AskOne(prompt, &confirm); err != nil {
						return fmt.Errorf("confirmation prompt failed: %w", err)
					}
					if !confirm {
						fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Deletion cancelled"))
						return nil
					}
				}
				if err := deleteConversation(cmd.Context(), store, id); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Deleted conversation %s", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// deleteConversation removes id and clears the current pointer when it
// referenced the deleted conversation.
func deleteConversation(ctx context.Context, store *app.Store, id string) error {
	convs, err := store.List(ctx)
	if err != nil {
		return err
	}
	kept := convs[:0]
	for _, c := range convs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if err := store.SaveAll(ctx, kept); err != nil {
		return err
	}

	current, err := store.CurrentID(ctx)
	if err != nil {
		return err
	}
	if current == id {
		return store.ClearCurrentID(ctx)
	}
	return nil
}
