package cli

import (
	"fmt"
	"slices"

	"github.com/matheus3301/momento/internal/api"
	"github.com/spf13/cobra"
)

var friendActions = []string{"accept", "cancel", "invite"}

func newDeleteCommentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-comment <photo-id> <comment-id>",
		Short: "Delete one of your comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodDeleteComment, map[string]any{
				"photo_id":   args[0],
				"comment_id": args[1],
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comment %s deleted.\n", args[1])
			return nil
		},
	}
}

func newDeleteAlbumCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-album <album-id>",
		Short: "Delete an album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodDeleteAlbum, map[string]any{"album_id": args[0]})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Album %s deleted.\n", args[0])
			return nil
		},
	}
}

func newDeletePhotoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-photo <photo-id>",
		Short: "Delete one of your photos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.call(cmd, api.MethodDeletePhoto, map[string]any{"photo_id": args[0]})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Photo %s deleted.\n", args[0])
			return nil
		},
	}
}

func newFriendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "friend <accept|cancel|invite> <user-id>",
		Short:     "Accept, cancel or send a friend request",
		Args:      cobra.ExactArgs(2),
		ValidArgs: friendActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, user := args[0], args[1]
			if !slices.Contains(friendActions, action) {
				return fmt.Errorf("unknown friend action %q (want accept, cancel or invite)", action)
			}
			resp, err := opts.call(cmd, api.MethodFriend, map[string]any{
				"user_id": user,
				"action":  action,
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			switch action {
			case "accept":
				fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s.\n", user)
			case "cancel":
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled request with %s.\n", user)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Invited %s.\n", user)
			}
			return nil
		},
	}
}
