package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/momento/internal/session"
	"github.com/spf13/cobra"
)

func newWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [namespace]",
		Short: "Stream daemon events until interrupted",
		Long: "Stream events from the session daemon. The optional namespace is a kind prefix, " +
			`for example "store." for store changes or "sync." for sync outcomes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := ""
			if len(args) == 1 {
				namespace = args[0]
			}
			c, err := opts.Dial(session.SocketPath(opts.Session))
			if err != nil {
				return fmt.Errorf("cannot connect to daemon for session %q: %w", opts.Session, err)
			}
			defer func() { _ = c.Close() }()

			out := cmd.OutOrStdout()
			err = c.Watch(cmd.Context(), namespace, func(evt map[string]any) error {
				if opts.JSON {
					return writeJSONLine(out, evt)
				}
				payload, err := json.Marshal(evt["payload"])
				if err != nil {
					return err
				}
				ms, _ := evt["occurred_at_ms"].(float64)
				at := time.UnixMilli(int64(ms)).Local().Format("15:04:05.000")
				_, err = fmt.Fprintf(out, "%s %-24v %s\n", at, evt["kind"], payload)
				return err
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
}
