package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/histmodel"
	"github.com/andresmejia3/spoofguard/internal/types"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

var mkHistOpts Options

var mkHistModelCmd = &cobra.Command{
	Use:   "mkhistmodel",
	Short: "Average the train real-access features into a reference histogram",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMkHistModel(cmd.Context(), mkHistOpts)
	},
}

func init() {
	addPipelineFlags(mkHistModelCmd, &mkHistOpts)
	rootCmd.AddCommand(mkHistModelCmd)
}

func runMkHistModel(ctx context.Context, opts Options) error {
	exp, err := prepareExperiment(opts)
	if err != nil {
		return err
	}

	data, err := exp.load(ctx, types.Train)
	if err != nil {
		utils.ShowError("Failed to load train features", err, nil)
		return err
	}

	model, err := histmodel.Mean(data[types.Train][types.Real].Rows)
	if err != nil {
		utils.ShowError("Failed to build the real-access model", err, nil)
		return err
	}
	if err := histmodel.Save(exp.opts.OutputDir, map[string][]float64{histmodel.RealModel: model}); err != nil {
		utils.ShowError("Failed to save the model", err, nil)
		return err
	}

	log.Info().Str("file", histmodel.Path(exp.opts.OutputDir)).Int("bins", len(model)).Msg("histogram model saved")
	return nil
}
