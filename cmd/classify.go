package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/ml"
	"github.com/andresmejia3/spoofguard/internal/scoring"
	"github.com/andresmejia3/spoofguard/internal/types"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

// TrainOptions extends Options with the classifier training flags.
type TrainOptions struct {
	Options
	MinMax  bool
	StdNorm bool
	PCA     bool
	Energy  float64
	Eval    bool
	Lambda  float64
	Epochs  int
	Seed    int64
	InFile  string
}

func (o TrainOptions) preprocess() ml.Preprocess {
	return ml.Preprocess{MinMax: o.MinMax, ZScore: o.StdNorm, PCA: o.PCA, Energy: o.Energy}
}

// addPreprocessFlags registers the normalization and PCA flags.
func addPreprocessFlags(cmd *cobra.Command, opts *TrainOptions) {
	cmd.Flags().BoolVar(&opts.MinMax, "mn", false, "Normalize features into [-1, 1] before training")
	cmd.Flags().BoolVar(&opts.MinMax, "min-max-normalize", false, "Alias of --mn")
	cmd.Flags().BoolVar(&opts.StdNorm, "sn", false, "Standardize features to zero mean and unit variance before training")
	cmd.Flags().BoolVar(&opts.StdNorm, "std-normalize", false, "Alias of --sn")
	cmd.Flags().BoolVarP(&opts.PCA, "pca-reduction", "r", false, "Reduce dimensionality with PCA before training")
	cmd.Flags().Float64Var(&opts.Energy, "energy", 0.99, "Variance fraction PCA keeps")
}

func validateTrainFlags(opts TrainOptions) error {
	if opts.PCA && (opts.Energy <= 0 || opts.Energy > 1) {
		err := fmt.Errorf("must be in (0, 1], got %v", opts.Energy)
		utils.ShowError("Invalid --energy", err, nil)
		return err
	}
	return nil
}

// trainMachine loads the train split and fits a machine on it.
func trainMachine(ctx context.Context, exp *experiment, opts TrainOptions, fit ml.Trainer) (*ml.Machine, error) {
	data, err := exp.load(ctx, types.Train)
	if err != nil {
		utils.ShowError("Failed to load train features", err, nil)
		return nil, err
	}
	train := data[types.Train]
	log.Info().
		Int("real", train[types.Real].Len()).
		Int("attack", train[types.Attack].Len()).
		Bool("min_max", opts.MinMax).
		Bool("std", opts.StdNorm).
		Bool("pca", opts.PCA).
		Msg("training")

	m, err := ml.Train(train[types.Real].Rows, train[types.Attack].Rows, opts.preprocess(), fit)
	if err != nil {
		utils.ShowError("Training failed", err, nil)
		return nil, err
	}
	if m.PCA != nil {
		log.Info().Int("components", m.PCA.Components()).Float64("energy", m.PCA.Energy).Msg("PCA fitted")
	}
	return m, nil
}

// evaluateMachine scores every split with m, normalizes the sign, optionally
// dumps the scores and writes the report.
func evaluateMachine(ctx context.Context, exp *experiment, method string, m *ml.Machine) error {
	policy, err := scoring.ParseSignPolicy(exp.opts.SignPolicy)
	if err != nil {
		utils.ShowError("Invalid --sign-policy", err, nil)
		return err
	}

	splits := []types.Split{types.Devel, types.Test}
	if exp.opts.Score {
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
		for c, mat := range byClass {
			if mat.Len() > 0 && mat.Dim != m.InputDim() {
				err := fmt.Errorf("%w: %s/%s features are %d-dimensional, machine expects %d", types.ErrDimensionMismatch, s, c, mat.Dim, m.InputDim())
				utils.ShowError("Machine does not match the features", err, nil)
				return err
			}
			scores[s][c] = scoring.ClassifierScores(m, mat.Rows)
		}
	}

	var rest [][]float64
	for _, s := range []types.Split{types.Test, types.Train} {
		if byClass, ok := scores[s]; ok {
			rest = append(rest, byClass[types.Real], byClass[types.Attack])
		}
	}
	dev := scores[types.Devel]
	flipped := scoring.NormalizeSign(policy, dev[types.Real], dev[types.Attack], rest...)

	if exp.opts.Score {
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
	if m.PCA != nil {
		report.Notes = append(report.Notes, fmt.Sprintf("EER @devel - (energy kept after PCA = %.2f)", m.PCA.Energy))
	}
	if flipped {
		report.Notes = append(report.Notes, "scores negated: genuine devel scores averaged below attack scores")
	}
	return exp.finish(ctx, method, report, flipped)
}
