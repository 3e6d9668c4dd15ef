package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/momento/internal/daemon"
	"github.com/matheus3301/momento/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	var sessionFlag string
	cmd := &cobra.Command{
		Use:          "momentod",
		Short:        "Run the momento sync daemon for one session",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionName, err := session.Select(sessionFlag)
			if err != nil {
				return err
			}
			app := fx.New(
				daemon.Module(daemon.Params{SessionName: sessionName}),
			)
			app.Run()
			return app.Err()
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
