package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/histmodel"
	"github.com/andresmejia3/spoofguard/internal/scoring"
	"github.com/andresmejia3/spoofguard/internal/types"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

var cmpHistOpts Options

var cmpHistModelsCmd = &cobra.Command{
	Use:   "cmphistmodels",
	Short: "Score every frame by chi-square distance to the real-access model and evaluate",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCmpHistModels(cmd.Context(), cmpHistOpts)
	},
}

func init() {
	addPipelineFlags(cmpHistModelsCmd, &cmpHistOpts)
	addScoreFlag(cmpHistModelsCmd, &cmpHistOpts)
	cmpHistModelsCmd.Flags().StringVarP(&cmpHistOpts.ModelDir, "input-modeldir", "m", "", "Directory containing the histogram model (default: result_dir from config)")
	rootCmd.AddCommand(cmpHistModelsCmd)
}

func runCmpHistModels(ctx context.Context, opts Options) error {
	exp, err := prepareExperiment(opts)
	if err != nil {
		return err
	}
	modelDir := opts.ModelDir
	if modelDir == "" {
		modelDir = exp.opts.OutputDir
	}

	model, err := histmodel.Load(modelDir, histmodel.RealModel)
	if err != nil {
		utils.ShowError("Failed to load the histogram model", err, nil)
		return err
	}

	splits := []types.Split{types.Devel, types.Test}
	if opts.Score {
		splits = types.Splits
	}
	data, err := exp.load(ctx, splits...)
	if err != nil {
		utils.ShowError("Failed to load features", err, nil)
		return err
	}

	scores := scoreSet{}
	for s, byClass := range data {
		scores[s] = map[types.Class][]float64{}
		for c, m := range byClass {
			sc, err := scoring.ChiSquareScores(model, m.Rows)
			if err != nil {
				err = fmt.Errorf("%s/%s: %w", s, c, err)
				utils.ShowError("Failed to score frames", err, nil)
				return err
			}
			scores[s][c] = sc
		}
	}

	if opts.Score {
		if err := exp.dumpScores(ctx, scores); err != nil {
			utils.ShowError("Failed to write scores", err, nil)
			return err
		}
	}

	report, err := exp.evaluate(scores)
	if err != nil {
		utils.ShowError("Failed to evaluate", err, nil)
		return err
	}
	return exp.finish(ctx, "chi2", report, false)
}
