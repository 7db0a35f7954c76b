package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"portraitgen/internal/delivery"
	"portraitgen/internal/session"
	"portraitgen/internal/storage"
	"portraitgen/pkg/zip"
)

type watchOptions struct {
	*rootOptions
	Photo    string
	Interval time.Duration
	Bundle   string
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &watchOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "watch <result-id>",
		Short: "Start a three-candidate session and follow it to completion",
		Long: `Load the result profile, dispatch three candidates and poll the ledger,
printing every state change. With --bundle the ready candidates are written
to a zip archive alongside a manifest.

Example:
  portraitctl watch --photo me.jpg --bundle portraits.zip 7f1c0d7e-2c55-4d9b-8d67-5d7de1f3a9a2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Photo, "photo", "", "reference photo path (required)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", delivery.DefaultInterval, "ledger poll interval")
	cmd.Flags().StringVar(&opts.Bundle, "bundle", "", "write ready candidates to this zip file")
	_ = cmd.MarkFlagRequired("photo")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions, resultID string) error {
	photo, mimeType, err := readPhoto(opts.Photo)
	if err != nil {
		return err
	}
	client := opts.client()
	logger := opts.logger()

	s := session.New(session.Config{
		ResultID:       resultID,
		ReferencePhoto: photo,
		PhotoMIME:      mimeType,
		Loader:         client,
		Dispatcher:     client,
		Reader:         client,
		Inliner:        delivery.NewDataURLInliner(&http.Client{Timeout: opts.Timeout}, 0),
		PollInterval:   opts.Interval,
		Logger:         &logger,
	})
	defer s.Close()

	done := make(chan session.State, 1)
	out := cmd.OutOrStdout()
	unsubscribe := s.Subscribe(func(st session.State) {
		fmt.Fprintln(out, describe(st))
		if session.Terminal(st) {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := s.Start(cmd.Context()); err != nil {
		return err
	}

	var final session.State
	select {
	case final = <-done:
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	switch st := final.(type) {
	case session.Failed:
		return st.Cause
	case session.Complete:
		if opts.Bundle == "" {
			return nil
		}
		return writeBundle(opts.Bundle, resultID, st.Candidates, out)
	}
	return nil
}

func describe(st session.State) string {
	switch st := st.(type) {
	case session.Generating:
		return fmt.Sprintf("%s: %d/%d ready", st.Name(), st.ReadyCount(), len(st.Slots))
	case session.Complete:
		return fmt.Sprintf("%s: %d candidates (%s)", st.Name(), len(st.Candidates), st.Context.TribeName)
	case session.Failed:
		return fmt.Sprintf("%s: %v", st.Name(), st.Cause)
	default:
		return st.Name()
	}
}

func writeBundle(path, resultID string, candidates []delivery.Candidate, out io.Writer) error {
	assets, err := bundleAssets(candidates)
	if err != nil {
		return err
	}
	archive, err := zip.ArchiveAssets(resultID, assets)
	if err != nil {
		return fmt.Errorf("bundle candidates: %w", err)
	}
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	fmt.Fprintf(out, "wrote %d candidates to %s\n", len(assets), path)
	return nil
}

func bundleAssets(candidates []delivery.Candidate) ([]zip.Asset, error) {
	assets := make([]zip.Asset, 0, len(candidates))
	for _, c := range candidates {
		mimeType, data, err := delivery.DecodeDataURL(c.DataURL)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", c.SlotIndex, err)
		}
		assets = append(assets, zip.Asset{
			Filename:  fmt.Sprintf("slot-%d%s", c.SlotIndex, storage.ExtensionForMIME(mimeType)),
			MIME:      mimeType,
			SlotIndex: c.SlotIndex,
			SourceURL: c.ArtifactURL,
			CreatedAt: c.CreatedAt,
			Data:      data,
		})
	}
	return assets, nil
}
