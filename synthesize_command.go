package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"loom_autopublisher/observe"
)

func newSynthesizeCommand(ctx *commandContext) *cobra.Command {
	var (
		transcriptPath string
		mockLLM        bool
	)

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Synthesize copy from a transcript file without publishing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(transcriptPath)
			if err != nil {
				return err
			}
			synth, err := ctx.buildSynthesizer(mockLLM, observe.DefaultMetrics())
			if err != nil {
				return err
			}
			rec, err := synth.Synthesize(cmd.Context(), transcript, ctx.brandStyle())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}

	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "Transcript file (.json segments or plain text)")
	cmd.Flags().BoolVar(&mockLLM, "mock-llm", false, "Use the offline mock model")
	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}
