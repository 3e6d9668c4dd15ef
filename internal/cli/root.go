package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/momento/internal/api"
	"github.com/matheus3301/momento/internal/session"
	"github.com/spf13/cobra"
)

// Caller is the subset of the control client the commands use.
type Caller interface {
	Call(ctx context.Context, method string, req map[string]any) (map[string]any, error)
	Watch(ctx context.Context, namespace string, fn func(map[string]any) error) error
	Close() error
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Session string
	JSON    bool
	Timeout time.Duration

	// Dial connects to a daemon socket. Defaults to api.Dial.
	Dial func(socketPath string) (Caller, error)
}

// NewRootCommand creates the root command for momentoctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Dial == nil {
		opts.Dial = func(socketPath string) (Caller, error) { return api.Dial(socketPath) }
	}

	cmd := &cobra.Command{
		Use:           "momentoctl",
		Short:         "Control a running momento session daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			name, err := session.Select(opts.Session)
			opts.Session = name
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Session, "session", "", "session name (overrides config default)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newSignOutCommand(opts))
	cmd.AddCommand(newChatsCommand(opts))
	cmd.AddCommand(newLikeCommand(opts))
	cmd.AddCommand(newCommentCommand(opts))
	cmd.AddCommand(newRenameAlbumCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newDeleteCommentCommand(opts))
	cmd.AddCommand(newDeleteAlbumCommand(opts))
	cmd.AddCommand(newDeletePhotoCommand(opts))
	cmd.AddCommand(newFriendCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

// call dials the session daemon, runs one method and closes the connection.
func (o *RootOptions) call(cmd *cobra.Command, method string, req map[string]any) (map[string]any, error) {
	c, err := o.Dial(session.SocketPath(o.Session))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", o.Session, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()
	return c.Call(ctx, method, req)
}
