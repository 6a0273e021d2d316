package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/ml"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

var ldaOpts TrainOptions

var ldaTrainCmd = &cobra.Command{
	Use:   "ldatrain",
	Short: "Train a Fisher LDA projection on the train split and evaluate it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLDATrain(cmd.Context(), ldaOpts)
	},
}

func init() {
	addPipelineFlags(ldaTrainCmd, &ldaOpts.Options)
	addScoreFlag(ldaTrainCmd, &ldaOpts.Options)
	addSignFlag(ldaTrainCmd, &ldaOpts.Options)
	addPreprocessFlags(ldaTrainCmd, &ldaOpts)
	rootCmd.AddCommand(ldaTrainCmd)
}

func runLDATrain(ctx context.Context, opts TrainOptions) error {
	if err := validateTrainFlags(opts); err != nil {
		return err
	}
	exp, err := prepareExperiment(opts.Options)
	if err != nil {
		return err
	}

	m, err := trainMachine(ctx, exp, opts, ml.LDATrainer())
	if err != nil {
		return err
	}
	path, err := m.Save(exp.opts.OutputDir, ml.LDAFile)
	if err != nil {
		utils.ShowError("Failed to save the LDA machine", err, nil)
		return err
	}
	log.Info().Str("file", path).Msg("LDA machine saved")

	return evaluateMachine(ctx, exp, "lda", m)
}
