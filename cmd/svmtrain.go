package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/ml"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

var svmOpts TrainOptions

var svmTrainCmd = &cobra.Command{
	Use:   "svmtrain",
	Short: "Train a linear SVM on the train split",
	Long: `Trains a linear SVM separating real accesses from attacks, optionally after
min-max normalization, standardization and PCA. The machine and its
preprocessing parameters are saved to <output-dir>/svm_machine.cbor so svmeval
can reuse them. With --eval the devel and test splits are scored right away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSVMTrain(cmd.Context(), svmOpts)
	},
}

func init() {
	addPipelineFlags(svmTrainCmd, &svmOpts.Options)
	addScoreFlag(svmTrainCmd, &svmOpts.Options)
	addSignFlag(svmTrainCmd, &svmOpts.Options)
	addPreprocessFlags(svmTrainCmd, &svmOpts)
	svmTrainCmd.Flags().BoolVar(&svmOpts.Eval, "eval", false, "Evaluate the trained machine on devel and test")
	svmTrainCmd.Flags().Float64Var(&svmOpts.Lambda, "lambda", ml.DefaultSVMParams.Lambda, "Regularization strength")
	svmTrainCmd.Flags().IntVar(&svmOpts.Epochs, "epochs", ml.DefaultSVMParams.Epochs, "Passes over the training set")
	svmTrainCmd.Flags().Int64Var(&svmOpts.Seed, "seed", ml.DefaultSVMParams.Seed, "Sample order seed")
	rootCmd.AddCommand(svmTrainCmd)
}

func validateSVMFlags(opts TrainOptions) error {
	if err := validateTrainFlags(opts); err != nil {
		return err
	}
	if opts.Lambda <= 0 {
		err := fmt.Errorf("must be positive, got %v", opts.Lambda)
		utils.ShowError("Invalid --lambda", err, nil)
		return err
	}
	if opts.Epochs < 1 {
		err := fmt.Errorf("must be at least 1, got %d", opts.Epochs)
		utils.ShowError("Invalid --epochs", err, nil)
		return err
	}
	return nil
}

func runSVMTrain(ctx context.Context, opts TrainOptions) error {
	if err := validateSVMFlags(opts); err != nil {
		return err
	}
	exp, err := prepareExperiment(opts.Options)
	if err != nil {
		return err
	}

	params := ml.SVMParams{Lambda: opts.Lambda, Epochs: opts.Epochs, Seed: opts.Seed}
	m, err := trainMachine(ctx, exp, opts, ml.SVMTrainer(params))
	if err != nil {
		return err
	}
	path, err := m.Save(exp.opts.OutputDir, ml.SVMFile)
	if err != nil {
		utils.ShowError("Failed to save the SVM machine", err, nil)
		return err
	}
	log.Info().Str("file", path).Msg("SVM machine saved")

	if !opts.Eval {
		return nil
	}
	return evaluateMachine(ctx, exp, "svm", m)
}
