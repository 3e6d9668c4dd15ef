package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matheus3301/momento/internal/api"
	intsync "github.com/matheus3301/momento/internal/sync"
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodStatus, nil)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session: %v\n", resp["session"])
			if user, ok := resp["user_name"]; ok {
				fmt.Fprintf(out, "User:    %v (%v)\n", user, resp["user_id"])
			} else {
				fmt.Fprintln(out, "User:    signed out")
			}
			fmt.Fprintf(out, "Channel: %v\n", resp["channel"])
			fmt.Fprintf(out, "Uptime:  %vms\n", resp["uptime_ms"])
			fmt.Fprintf(out, "Stored:  %v chats, %v photos, %v friends, %v albums\n",
				resp["chats"], resp["photos"], resp["friends"], resp["albums"])

			kinds, _ := resp["sync"].(map[string]any)
			names := make([]string, 0, len(kinds))
			for k := range kinds {
				names = append(names, k)
			}
			slices.Sort(names)
			for _, k := range names {
				entry, _ := kinds[k].(map[string]any)
				line := fmt.Sprintf("  %-8s %v items=%v", k, entry["at"], entry["items"])
				if e, ok := entry["error"]; ok {
					line += fmt.Sprintf(" error=%v", e)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	kinds := make([]string, len(intsync.Kinds))
	for i, k := range intsync.Kinds {
		kinds[i] = string(k)
	}
	return &cobra.Command{
		Use:       "sync [kind]",
		Short:     "Sync now, every kind or just one",
		Long:      "Run a sync pass immediately. Valid kinds: " + strings.Join(kinds, ", ") + ".",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{}
			if len(args) == 1 {
				if _, err := intsync.ParseKind(args[0]); err != nil {
					return err
				}
				req["kind"] = args[0]
			}
			resp, err := opts.call(cmd, api.MethodSync, req)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Synced: %s\n", joinList(resp["synced"]))
			if failed := joinList(resp["failed"]); failed != "" {
				fmt.Fprintf(out, "Failed: %s\n", failed)
			}
			return nil
		},
	}
}

func newSignOutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and drop all cached data of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodSignOut, nil)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newChatsCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodListChats, map[string]any{"limit": limit})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			chats, _ := resp["chats"].([]any)
			if len(chats) == 0 {
				fmt.Fprintln(out, "No chats.")
				return nil
			}
			for _, c := range chats {
				chat, _ := c.(map[string]any)
				unread := ""
				if n, _ := chat["unread"].(float64); n > 0 {
					unread = fmt.Sprintf(" [%d]", int(n))
				}
				fmt.Fprintf(out, "%-24v %v%s  %v\n", chat["id"], chat["title"], unread, valueOr(chat["last_message"], ""))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of chats")
	return cmd
}

func newLikeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like <photo-id>",
		Short: "Toggle your like on a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodToggleLike, map[string]any{"photo_id": args[0]})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			if liked, _ := resp["liked"].(bool); liked {
				fmt.Fprintf(cmd.OutOrStdout(), "Liked %s.\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Unliked %s.\n", args[0])
			}
			return nil
		},
	}
}

func newCommentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <photo-id> <text>...",
		Short: "Comment on a photo",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodComment, map[string]any{
				"photo_id": args[0],
				"text":     strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comment %v added.\n", resp["comment_id"])
			return nil
		},
	}
}

func newRenameAlbumCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename-album <album-id> <title>...",
		Short: "Rename an album",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodRenameAlbum, map[string]any{
				"album_id": args[0],
				"title":    strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Album %s renamed.\n", args[0])
			return nil
		},
	}
}

func newSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <text>...",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodSendMessage, map[string]any{
				"chat_id": args[0],
				"text":    strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %v.\n", resp["message_id"])
			return nil
		},
	}
}

func joinList(v any) string {
	items, _ := v.([]any)
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch s := it.(type) {
		case string:
			parts = append(parts, s)
		case float64:
			parts = append(parts, strconv.FormatFloat(s, 'f', -1, 64))
		}
	}
	return strings.Join(parts, ", ")
}

func valueOr(v any, def string) any {
	if v == nil {
		return def
	}
	return v
}
