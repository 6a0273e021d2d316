package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/ml"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

var svmEvalOpts TrainOptions

var svmEvalCmd = &cobra.Command{
	Use:   "svmeval",
	Short: "Evaluate a saved SVM machine on devel and test",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSVMEval(cmd.Context(), svmEvalOpts)
	},
}

func init() {
	addPipelineFlags(svmEvalCmd, &svmEvalOpts.Options)
	addScoreFlag(svmEvalCmd, &svmEvalOpts.Options)
	addSignFlag(svmEvalCmd, &svmEvalOpts.Options)
	svmEvalCmd.Flags().StringVarP(&svmEvalOpts.InFile, "infile", "i", "", "Machine file written by svmtrain (default: <output-dir>/svm_machine.cbor)")
	rootCmd.AddCommand(svmEvalCmd)
}

func runSVMEval(ctx context.Context, opts TrainOptions) error {
	exp, err := prepareExperiment(opts.Options)
	if err != nil {
		return err
	}
	in := opts.InFile
	if in == "" {
		in = filepath.Join(exp.opts.OutputDir, ml.SVMFile)
	}

	m, err := ml.LoadMachine(in)
	if err != nil {
		utils.ShowError("Failed to load the SVM machine", err, nil)
		return err
	}
	return evaluateMachine(ctx, exp, "svm", m)
}
