package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"loom_autopublisher/ledger"
	"loom_autopublisher/observe"
	"loom_autopublisher/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun         bool
		skipIntro      bool
		mockLLM        bool
		noHistory      bool
		transcriptPath string
		videoPath      string
		thumbnailPath  string
		profiles       []string
	)

	cmd := &cobra.Command{
		Use:   "run [share-url]",
		Short: "Run the full pipeline for one recording",
		Long: "Fetches the recording behind a Loom share URL (or reads --transcript), synthesizes the copy\n" +
			"and distributes it. Sinks without credentials, and every sink under --dry-run, are simulated.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && transcriptPath == "" {
				return errors.New("a share URL or --transcript is required")
			}
			metrics := observe.DefaultMetrics()
			synth, err := ctx.buildSynthesizer(mockLLM, metrics)
			if err != nil {
				return err
			}

			var recorder pipeline.Recorder
			if !noHistory {
				store, err := ledger.Open(ctx.config.LedgerPath)
				if err != nil {
					return err
				}
				defer store.Close()
				recorder = store
			}

			orch, err := ctx.buildOrchestrator(synth, metrics, recorder)
			if err != nil {
				return err
			}

			req := pipeline.Request{
				BrandStyle:    ctx.brandStyle(),
				WithIntro:     !skipIntro,
				Profiles:      profiles,
				VideoPath:     videoPath,
				ThumbnailPath: thumbnailPath,
			}
			if len(args) == 1 {
				req.ShareURL = args[0]
			}
			if transcriptPath != "" {
				if req.Transcript, err = readTranscript(transcriptPath); err != nil {
					return err
				}
			}
			if dryRun {
				req.DryRun = pipeline.AllDryRun()
			}

			out, err := orch.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write outcome: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate every sink regardless of credentials")
	cmd.Flags().BoolVar(&skipIntro, "skip-intro", false, "Do not render the avatar intro")
	cmd.Flags().BoolVar(&mockLLM, "mock-llm", false, "Use the offline mock model instead of the configured provider")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the ledger")
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "Use a local transcript (.json segments or plain text) instead of fetching")
	cmd.Flags().StringVar(&videoPath, "video", "", "Local video file uploaded when --transcript is used")
	cmd.Flags().StringVar(&thumbnailPath, "thumbnail", "", "Local thumbnail file uploaded when --transcript is used")
	cmd.Flags().StringSliceVar(&profiles, "profiles", nil, "Buffer profile IDs (defaults to buffer.profiles)")
	return cmd
}
