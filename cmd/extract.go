package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/features"
	"github.com/andresmejia3/spoofguard/internal/protocol"
	"github.com/andresmejia3/spoofguard/internal/types"
	"github.com/andresmejia3/spoofguard/internal/utils"
	"github.com/andresmejia3/spoofguard/internal/worker"
)

// ExtractOptions holds the extract flags.
type ExtractOptions struct {
	InputDir       string
	OutputDir      string
	ProtocolPath   string
	Feature        string
	LBPType        string
	ELBPType       string
	Blocks         int
	Circular       bool
	Overlap        bool
	NormFaceSize   int
	FaceSizeFilter int
	Enrollment     bool
	NoNorm         bool
	BoundingBox    bool
	Cell           int
	CellOverlap    int
	Block          int
	BlockOverlap   int
	NumEngines     int
	WorkerTimeout  string
	NoProgress     bool
}

var extractOpts ExtractOptions

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract per-frame features of every protocol video with parallel engines",
	Long: `Runs a pool of extractor processes over the videos of a protocol and writes,
for each video, its [frames × D] feature matrix and its validity mask:

  <output-dir>/<video-id>.cbor
  <output-dir>/validframes/<video-id>.cbor

Frames the extractor could not use (no face, face too small) are stored as
NaN marker rows and flagged invalid in the mask.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExtract(cmd.Context(), extractOpts)
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractOpts.InputDir, "input-dir", "v", "", "Base directory containing the videos")
	f.StringVarP(&extractOpts.OutputDir, "output-dir", "d", "", "Directory receiving the feature files (default: feature_dir from config)")
	f.StringVar(&extractOpts.ProtocolPath, "protocol", "", "Protocol file listing the videos")
	f.StringVar(&extractOpts.Feature, "feature", "lbp", "Feature type: lbp, mslbp, hog or videolbp (one averaged row per video)")
	f.StringVarP(&extractOpts.LBPType, "lbptype", "l", "uniform", "LBP type: regular, riu2 or uniform")
	f.StringVar(&extractOpts.ELBPType, "elbptype", "regular", "Extended LBP type: regular, transitional, direction_coded or modified")
	f.StringVar(&extractOpts.ELBPType, "el", "regular", "Alias of --elbptype")
	f.IntVarP(&extractOpts.Blocks, "blocks", "b", 1, "Split the face into blocks×blocks regions and concatenate their histograms")
	f.BoolVarP(&extractOpts.Circular, "circular", "c", false, "Compute circular LBP")
	f.BoolVarP(&extractOpts.Overlap, "overlap", "o", false, "Use overlapping blocks")
	f.IntVarP(&extractOpts.NormFaceSize, "normface-size", "n", 64, "Size of the normalized face box")
	f.IntVar(&extractOpts.FaceSizeFilter, "facesize-filter", 0, "Discard frames whose face is smaller than this")
	f.IntVar(&extractOpts.FaceSizeFilter, "ff", 0, "Alias of --facesize-filter")
	f.BoolVarP(&extractOpts.Enrollment, "enrollment", "e", false, "Process the enrollment videos instead of the train/devel/test videos")
	f.BoolVar(&extractOpts.NoNorm, "nonorm", false, "Skip face (LBP) or block (HOG) normalization")
	f.BoolVar(&extractOpts.NoNorm, "nn", false, "Alias of --nonorm")
	f.BoolVar(&extractOpts.BoundingBox, "boundingbox", false, "Read face locations from the database bounding boxes (msu only)")
	f.BoolVar(&extractOpts.BoundingBox, "bbx", false, "Alias of --boundingbox")
	f.IntVar(&extractOpts.Cell, "cell", 16, "HOG cell size")
	f.IntVar(&extractOpts.CellOverlap, "cell-overlap", 8, "HOG cell overlap")
	f.IntVar(&extractOpts.Block, "block", 4, "HOG block size")
	f.IntVar(&extractOpts.BlockOverlap, "block-overlap", 1, "HOG block overlap")
	f.IntVar(&extractOpts.NumEngines, "engines", 0, "Number of parallel extractor engines (default: workers from config)")
	f.StringVar(&extractOpts.WorkerTimeout, "worker-timeout", "", "Timeout for an engine to process one video, e.g. '5m' (default: worker_timeout from config)")
	f.BoolVar(&extractOpts.NoProgress, "no-progress", false, "Disable the progress bar")

	extractCmd.MarkFlagRequired("input-dir")
	extractCmd.MarkFlagRequired("protocol")
	rootCmd.AddCommand(extractCmd)
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	err := fmt.Errorf("got %q, want one of %v", value, allowed)
	utils.ShowError("Invalid --"+name, err, nil)
	return err
}

func validateExtractFlags(opts *ExtractOptions) error {
	if Cfg != nil {
		if opts.OutputDir == "" {
			opts.OutputDir = Cfg.FeatureDir
		}
		if opts.NumEngines < 1 {
			opts.NumEngines = Cfg.Workers
		}
		if opts.WorkerTimeout == "" {
			opts.WorkerTimeout = Cfg.WorkerTimeout.String()
		}
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}

	if err := oneOf("feature", opts.Feature, "lbp", "mslbp", "hog", "videolbp"); err != nil {
		return err
	}
	if err := oneOf("lbptype", opts.LBPType, "regular", "riu2", "uniform"); err != nil {
		return err
	}
	if err := oneOf("elbptype", opts.ELBPType, "regular", "transitional", "direction_coded", "modified"); err != nil {
		return err
	}
	if opts.Blocks < 1 {
		err := fmt.Errorf("must be at least 1, got %d", opts.Blocks)
		utils.ShowError("Invalid --blocks", err, nil)
		return err
	}
	if opts.NormFaceSize < 1 || opts.FaceSizeFilter < 0 {
		err := fmt.Errorf("normface-size must be positive and facesize-filter non-negative, got %d and %d", opts.NormFaceSize, opts.FaceSizeFilter)
		utils.ShowError("Invalid face size", err, nil)
		return err
	}
	if opts.Feature == "hog" && (opts.Cell < 1 || opts.Block < 1 || opts.CellOverlap < 0 || opts.BlockOverlap < 0) {
		err := fmt.Errorf("cell and block must be positive, overlaps non-negative")
		utils.ShowError("Invalid HOG geometry", err, nil)
		return err
	}
	if opts.WorkerTimeout != "" {
		if _, err := time.ParseDuration(opts.WorkerTimeout); err != nil {
			utils.ShowError("Invalid worker-timeout format (use '30s', '5m')", err, nil)
			return err
		}
	}
	if err := utils.RequireDir(opts.InputDir); err != nil {
		utils.ShowError("Input directory does not exist", err, nil)
		return err
	}
	return nil
}

// extractRequest builds the extractor request for one video. Relative video
// and face-file paths are resolved against the input directory, except face
// files of databases that list them absolutely.
func extractRequest(opts ExtractOptions, kind types.DatabaseKind, v types.Video) worker.ExtractRequest {
	videoPath := v.Path
	if !filepath.IsAbs(videoPath) {
		videoPath = filepath.Join(opts.InputDir, videoPath)
	}
	faceFile := v.FaceFile
	if faceFile != "" && !kind.AbsoluteFaceFiles() && !filepath.IsAbs(faceFile) {
		faceFile = filepath.Join(opts.InputDir, faceFile)
	}
	feature := opts.Feature
	if feature == "videolbp" {
		feature = "lbp"
	}
	req := worker.ExtractRequest{
		VideoPath:      videoPath,
		FaceFile:       faceFile,
		Database:       string(kind),
		Rotated:        v.Rotated && kind.SupportsRotation(),
		Feature:        feature,
		LBPType:        opts.LBPType,
		ELBPType:       opts.ELBPType,
		Blocks:         opts.Blocks,
		Circular:       opts.Circular,
		Overlap:        opts.Overlap,
		NormFaceSize:   opts.NormFaceSize,
		FaceSizeFilter: opts.FaceSizeFilter,
		NoNorm:         opts.NoNorm,
		BoundingBox:    opts.BoundingBox,
	}
	if feature == "hog" {
		req.Cell, req.CellOverlap = opts.Cell, opts.CellOverlap
		req.Block, req.BlockOverlap = opts.Block, opts.BlockOverlap
	}
	return req
}

// videoAverage collapses a video to the mean of its valid rows. A video
// without valid frames becomes a single invalid frame.
func videoAverage(res *worker.ExtractResult) *features.Video {
	dim := 0
	if len(res.Rows) > 0 {
		dim = len(res.Rows[0])
	}
	mean := make([]float64, dim)
	n := 0
	for i, row := range res.Rows {
		if !res.Valid[i] {
			continue
		}
		for j, x := range row {
			mean[j] += x
		}
		n++
	}
	if n == 0 {
		return &features.Video{Rows: [][]float64{mean}, Valid: []bool{false}}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	return &features.Video{Rows: [][]float64{mean}, Valid: []bool{true}}
}

func saveExtraction(opts ExtractOptions, v types.Video, res *worker.ExtractResult) error {
	if len(res.Rows) != len(res.Valid) {
		return fmt.Errorf("%w: video %s: %d rows but %d validity flags", types.ErrDimensionMismatch, v.ID, len(res.Rows), len(res.Valid))
	}
	for i, row := range res.Rows {
		if !res.Valid[i] {
			continue
		}
		if marker, err := features.CheckRow(row); err != nil || marker {
			return fmt.Errorf("%w: video %s frame %d is flagged valid but holds NaN", types.ErrCorruptFrame, v.ID, i)
		}
	}
	video := &features.Video{Rows: res.Rows, Valid: res.Valid}
	if opts.Feature == "videolbp" {
		video = videoAverage(res)
	}
	return features.Save(opts.OutputDir, v.ID, video)
}

func runExtract(ctx context.Context, opts ExtractOptions) error {
	if err := validateExtractFlags(&opts); err != nil {
		return err
	}

	proto, err := protocol.Load(opts.ProtocolPath)
	if err != nil {
		utils.ShowError("Failed to load protocol", err, nil)
		return err
	}
	if opts.BoundingBox && proto.Database != types.MSUMFSD {
		err := fmt.Errorf("database is %s", proto.Database)
		utils.ShowError("--boundingbox is only available for msu", err, nil)
		return err
	}

	videos := proto.All()
	if opts.Enrollment {
		videos = proto.Enroll()
	}
	if len(videos) == 0 {
		err := fmt.Errorf("%w: protocol %s lists no videos to extract", types.ErrEmptyDataset, proto.Name)
		utils.ShowError("Nothing to do", err, nil)
		return err
	}
	if opts.NumEngines > len(videos) {
		opts.NumEngines = len(videos)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		utils.ShowError("Failed to create output directory", err, nil)
		return err
	}

	var timeout time.Duration
	if opts.WorkerTimeout != "" {
		timeout, _ = time.ParseDuration(opts.WorkerTimeout)
	}
	engineCfg := worker.Config{Command: "python3", Args: []string{"-u", "python/extract.py"}, ReadTimeout: timeout}
	if Cfg != nil {
		engineCfg.Command = Cfg.ExtractorCmd
		engineCfg.Args = []string{"-u", Cfg.ExtractorScript}
	}

	log.Info().
		Str("protocol", proto.Name).
		Str("feature", opts.Feature).
		Int("videos", len(videos)).
		Int("engines", opts.NumEngines).
		Msg("extracting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskChan := make(chan types.Video, opts.NumEngines)
	doneChan := make(chan string, opts.NumEngines*2)
	errChan := make(chan error, opts.NumEngines+1)
	var wg sync.WaitGroup

	fail := func(err error) {
		select {
		case errChan <- err:
		default:
		}
		cancel()
	}

	for i := 0; i < opts.NumEngines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			e, err := worker.NewEngine(ctx, id, engineCfg)
			if err != nil {
				if ctx.Err() == nil {
					utils.ShowError("Engine startup failed", err, nil)
				}
				fail(err)
				return
			}

			for v := range taskChan {
				res, err := e.Extract(extractRequest(opts, proto.Database, v))
				if err == nil {
					err = saveExtraction(opts, v, res)
				}
				if err != nil {
					err = fmt.Errorf("video %s: %w", v.ID, err)
					// DRAIN: Wait for process to exit and capture final stderr logs
					e.Close()
					if ctx.Err() == nil {
						utils.ShowError("Extraction failed", err, e.Cmd)
					}
					fail(err)
					return
				}
				select {
				case doneChan <- v.ID:
				case <-ctx.Done():
					e.Close()
					return
				}
			}
			if err := e.Close(); err != nil {
				log.Warn().Err(err).Int("engine", id).Msg("extractor exited uncleanly")
			}
		}(i)
	}

	go func() {
		defer close(taskChan)
		for _, v := range videos {
			select {
			case taskChan <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(doneChan)
	}()

	var bar *progressbar.ProgressBar
	if !opts.NoProgress {
		bar = progressbar.NewOptions(len(videos),
			progressbar.OptionSetDescription("🎞️  Extracting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}
	done := 0
	for id := range doneChan {
		done++
		if bar != nil {
			_ = bar.Add(1)
		}
		log.Debug().Str("video", id).Msg("features saved")
	}

	select {
	case err := <-errChan:
		return err
	default:
	}
	if done < len(videos) {
		return ctx.Err()
	}
	if bar != nil {
		_ = bar.Finish()
	}

	log.Info().Int("videos", done).Str("dir", opts.OutputDir).Msg("extraction complete")
	return nil
}
