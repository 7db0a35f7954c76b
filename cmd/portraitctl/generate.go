package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"portraitgen/internal/domain"
)

type generateOptions struct {
	*rootOptions
	Photo string
	Count int
}

func newGenerateCommand(root *rootOptions) *cobra.Command {
	opts := &generateOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "generate <result-id>",
		Short: "Request candidates for a result",
		Long: `Request portrait candidates for a result.

With --count 1 the call blocks until the single artifact is stored and prints
its URL. Larger counts are dispatched in the background; use "watch" to follow
them.

Example:
  portraitctl generate --photo me.jpg 7f1c0d7e-2c55-4d9b-8d67-5d7de1f3a9a2
  portraitctl generate --photo me.jpg --count 3 7f1c0d7e-2c55-4d9b-8d67-5d7de1f3a9a2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, mimeType, err := readPhoto(opts.Photo)
			if err != nil {
				return err
			}
			res, err := opts.client().Generate(cmd.Context(), domain.GenerationRequest{
				ResultID:       args[0],
				ReferencePhoto: photo,
				PhotoMIME:      mimeType,
				CandidateCount: opts.Count,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.ArtifactURL != "" {
				fmt.Fprintf(out, "slot %d: %s\n", res.SlotIndex, res.ArtifactURL)
				return nil
			}
			fmt.Fprintf(out, "dispatched %d candidates for %s\n", len(res.Pending), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Photo, "photo", "", "reference photo path (required)")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of candidates")
	_ = cmd.MarkFlagRequired("photo")
	return cmd
}

func readPhoto(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("read photo: %s is empty", path)
	}
	return data, http.DetectContentType(data), nil
}
