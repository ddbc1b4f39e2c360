package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func matchCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run one match round for a user and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := buildCore(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			res, runErr := c.scheduler.RunMatches(ctx, userID)
			if res != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "id of the initiating user")
	cmd.MarkFlagRequired("user")
	return cmd
}
