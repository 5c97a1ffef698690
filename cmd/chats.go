package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage saved conversations",
	RunE:  runChatsList,
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	RunE:  runChatsList,
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of one conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsShow,
}

var chatsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsRm,
}

var chatsPromptCmd = &cobra.Command{
	Use:   "prompt <id> [instructions]",
	Short: "Set a conversation's custom instructions (omit to clear)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runChatsPrompt,
}

func init() {
	chatsCmd.AddCommand(chatsListCmd, chatsShowCmd, chatsRmCmd, chatsPromptCmd)
	rootCmd.AddCommand(chatsCmd)
}

func parseChatID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", arg)
	}
	return id, nil
}

func runChatsList(cmd *cobra.Command, args []string) error {
	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	chats, err := svc.ListChats(context.Background())
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(chats) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}

	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"ID", "Title", "Messages", "Last activity"})
	for _, c := range chats {
		w.AppendRow(table.Row{c.ID, c.Title, c.MessageCount, c.UpdatedAt.Format("2006-01-02 15:04")})
	}
	fmt.Fprintln(out, w.Render())
	return nil
}

func runChatsShow(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}

	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	messages, err := svc.Messages(context.Background(), id)
	if err != nil {
		return fmt.Errorf("loading chat %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	for _, m := range messages {
		prefix := "You"
		if m.Role == "assistant" {
			prefix = "Sage"
		}
		fmt.Fprintf(out, "%s> %s\n\n", prefix, m.Content)
	}
	return nil
}

func runChatsPrompt(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}

	var prompt string
	if len(args) == 2 {
		prompt = args[1]
	}

	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	if err := svc.SetSystemPrompt(context.Background(), id, prompt); err != nil {
		return fmt.Errorf("setting prompt for chat %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	if prompt == "" {
		fmt.Fprintf(out, "Cleared custom instructions for chat #%d\n", id)
	} else {
		fmt.Fprintf(out, "Set custom instructions for chat #%d\n", id)
	}
	return nil
}

func runChatsRm(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}

	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	if err := svc.DeleteChat(context.Background(), id); err != nil {
		return fmt.Errorf("deleting chat %d: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted chat #%d\n", id)
	return nil
}
