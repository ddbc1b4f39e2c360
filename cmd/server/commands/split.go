package commands

import (
	"encoding/json"
	"fmt"
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc/transcript"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func splitCmd() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a profile into share files, one per party",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var profile model.Profile
			if err := json.Unmarshal(data, &profile); err != nil {
				return fmt.Errorf("parse profile: %w", err)
			}

			written, err := splitProfile(&profile, out)
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "profile JSON file")
	cmd.Flags().StringVar(&out, "out", ".", "directory for the share files")
	cmd.MarkFlagRequired("in")
	return cmd
}

func splitProfile(profile *model.Profile, dir string) ([]string, error) {
	input, err := profile.Encode()
	if err != nil {
		return nil, err
	}
	set, err := transcript.New().SplitShares(input)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(set))
	for i, share := range set {
		p := filepath.Join(dir, model.ShareFileName(i))
		if err := os.WriteFile(p, share, 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
