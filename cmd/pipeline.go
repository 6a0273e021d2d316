package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/spoofguard/internal/dataset"
	"github.com/andresmejia3/spoofguard/internal/features"
	"github.com/andresmejia3/spoofguard/internal/perf"
	"github.com/andresmejia3/spoofguard/internal/protocol"
	"github.com/andresmejia3/spoofguard/internal/scoremap"
	"github.com/andresmejia3/spoofguard/internal/store"
	"github.com/andresmejia3/spoofguard/internal/types"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

// scoreDirName is the sub-directory of the output dir receiving score dumps.
const scoreDirName = "scores"

// experiment is the validated input of one scoring stage.
type experiment struct {
	opts   Options
	proto  *protocol.Protocol
	mode   features.Mode
	digest string
}

// splitData holds the aggregated real and attack matrices of one split.
type splitData map[types.Class]*dataset.Matrix

// scoreSet holds flat scores per split and class, in aggregation order.
type scoreSet map[types.Split]map[types.Class][]float64

// prepareExperiment fills defaults from the configuration and validates the
// directories, the mode and the protocol. Failures are shown to the operator.
func prepareExperiment(opts Options) (*experiment, error) {
	if Cfg != nil {
		if opts.InputDir == "" {
			opts.InputDir = Cfg.FeatureDir
		}
		if opts.OutputDir == "" {
			opts.OutputDir = Cfg.ResultDir
		}
		if opts.Workers < 1 {
			opts.Workers = Cfg.Workers
		}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	if err := utils.RequireDir(opts.InputDir); err != nil {
		utils.ShowError("Input directory does not exist", err, nil)
		return nil, err
	}
	mode, err := features.ParseMode(opts.Mode)
	if err != nil {
		utils.ShowError("Invalid --mode", err, nil)
		return nil, err
	}
	proto, err := protocol.Load(opts.ProtocolPath)
	if err != nil {
		utils.ShowError("Failed to load protocol", err, nil)
		return nil, err
	}
	digest, err := utils.FileDigest(opts.ProtocolPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		utils.ShowError("Failed to create output directory", err, nil)
		return nil, err
	}

	log.Info().
		Str("protocol", proto.Name).
		Str("database", string(proto.Database)).
		Str("input", opts.InputDir).
		Str("output", opts.OutputDir).
		Str("mode", string(mode)).
		Msg("experiment ready")
	return &experiment{opts: opts, proto: proto, mode: mode, digest: digest}, nil
}

// load aggregates the real and attack matrices of the given splits.
func (e *experiment) load(ctx context.Context, splits ...types.Split) (map[types.Split]splitData, error) {
	out := make(map[types.Split]splitData, len(splits))
	for _, s := range splits {
		out[s] = splitData{}
		for _, c := range []types.Class{types.Real, types.Attack} {
			m, err := dataset.Aggregate(ctx, dataset.Request{
				Dir:      e.opts.InputDir,
				Videos:   e.proto.Videos(s, c),
				Mode:     e.mode,
				Workers:  e.opts.Workers,
				Progress: !e.opts.NoProgress,
				Label:    fmt.Sprintf("%s/%s", s, c),
			})
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", s, c, err)
			}
			log.Info().Str("set", fmt.Sprintf("%s/%s", s, c)).Int("videos", len(m.Counts)).Int("frames", m.Len()).Msg("loaded")
			out[s][c] = m
		}
	}
	return out, nil
}

// dumpScores writes the per-frame score file of every video that has scores.
func (e *experiment) dumpScores(ctx context.Context, scores scoreSet) error {
	dir := filepath.Join(e.opts.OutputDir, scoreDirName)
	for _, s := range types.Splits {
		byClass, ok := scores[s]
		if !ok {
			continue
		}
		for _, c := range []types.Class{types.Real, types.Attack} {
			err := scoremap.Map(ctx, scoremap.Request{
				FeatureDir: e.opts.InputDir,
				ScoreDir:   dir,
				Videos:     e.proto.Videos(s, c),
				Scores:     byClass[c],
				Mode:       e.mode,
			})
			if err != nil {
				return fmt.Errorf("dump %s/%s scores: %w", s, c, err)
			}
		}
	}
	log.Info().Str("dir", dir).Msg("scores written")
	return nil
}

// evaluate computes the EER report from the devel and test scores.
func (e *experiment) evaluate(scores scoreSet) (*perf.Report, error) {
	dev, test := scores[types.Devel], scores[types.Test]
	return perf.Evaluate(dev[types.Real], dev[types.Attack], test[types.Real], test[types.Attack])
}

// finish prints and writes the report, then records it in the results
// database when one is configured.
func (e *experiment) finish(ctx context.Context, method string, report *perf.Report, signFlipped bool) error {
	path, err := report.WriteTable(e.opts.OutputDir)
	if err != nil {
		utils.ShowError("Failed to write performance table", err, nil)
		return err
	}
	fmt.Print(report.String())
	log.Info().Str("file", path).Msg("performance table written")

	if DB == nil {
		return nil
	}
	run := store.NewRun(method, e.proto.Name, report)
	run.ProtocolDigest = e.digest
	run.OutputDir = e.opts.OutputDir
	run.SignFlipped = signFlipped
	id, err := DB.SaveRun(ctx, run)
	if err != nil {
		utils.ShowError("Failed to record results", err, nil)
		return err
	}
	log.Info().Int64("run", id).Msg("results recorded")
	return nil
}
