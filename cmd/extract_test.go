package cmd

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/config"
	"github.com/andresmejia3/spoofguard/internal/features"
	"github.com/andresmejia3/spoofguard/internal/types"
	"github.com/andresmejia3/spoofguard/internal/worker"
)

func validExtractOptions(t *testing.T) ExtractOptions {
	return ExtractOptions{
		InputDir:     t.TempDir(),
		OutputDir:    t.TempDir(),
		Feature:      "lbp",
		LBPType:      "uniform",
		ELBPType:     "regular",
		Blocks:       1,
		NormFaceSize: 64,
		Cell:         16,
		CellOverlap:  8,
		Block:        4,
		BlockOverlap: 1,
		NoProgress:   true,
	}
}

func TestValidateExtractFlags(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *ExtractOptions)
		wantErr bool
	}{
		{name: "defaults", mutate: func(o *ExtractOptions) {}},
		{name: "unknown feature", mutate: func(o *ExtractOptions) { o.Feature = "sift" }, wantErr: true},
		{name: "unknown lbptype", mutate: func(o *ExtractOptions) { o.LBPType = "fancy" }, wantErr: true},
		{name: "unknown elbptype", mutate: func(o *ExtractOptions) { o.ELBPType = "other" }, wantErr: true},
		{name: "zero blocks", mutate: func(o *ExtractOptions) { o.Blocks = 0 }, wantErr: true},
		{name: "negative face filter", mutate: func(o *ExtractOptions) { o.FaceSizeFilter = -1 }, wantErr: true},
		{name: "hog without cells", mutate: func(o *ExtractOptions) { o.Feature = "hog"; o.Cell = 0 }, wantErr: true},
		{name: "lbp ignores hog geometry", mutate: func(o *ExtractOptions) { o.Cell = 0 }},
		{name: "bad timeout", mutate: func(o *ExtractOptions) { o.WorkerTimeout = "soon" }, wantErr: true},
		{name: "missing input", mutate: func(o *ExtractOptions) { o.InputDir = filepath.Join(o.InputDir, "nope") }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validExtractOptions(t)
			tt.mutate(&opts)
			err := validateExtractFlags(&opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, 1, opts.NumEngines)
		})
	}
}

func TestExtractRequestResolvesPaths(t *testing.T) {
	opts := ExtractOptions{InputDir: "/data/videos", Feature: "videolbp", Cell: 16}
	v := types.Video{ID: "real/client001", Path: "real/client001.mov", FaceFile: "face-locations/client001.face"}

	req := extractRequest(opts, types.ReplayAttack, v)
	assert.Equal(t, "/data/videos/real/client001.mov", req.VideoPath)
	assert.Equal(t, "/data/videos/face-locations/client001.face", req.FaceFile)
	assert.Equal(t, "lbp", req.Feature)
	assert.Zero(t, req.Cell)

	// CASIA lists face files as given.
	req = extractRequest(opts, types.CasiaFASD, v)
	assert.Equal(t, "face-locations/client001.face", req.FaceFile)

	v.Rotated = true
	assert.False(t, extractRequest(opts, types.ReplayAttack, v).Rotated)
	assert.True(t, extractRequest(opts, types.MSUMFSD, v).Rotated)

	opts.Feature = "hog"
	req = extractRequest(opts, types.ReplayAttack, types.Video{ID: "x", Path: "/abs/x.mov"})
	assert.Equal(t, "/abs/x.mov", req.VideoPath)
	assert.Equal(t, 16, req.Cell)
}

func TestVideoAverage(t *testing.T) {
	res := &worker.ExtractResult{
		Rows:  [][]float64{{1, 2}, {100, 100}, {3, 4}},
		Valid: []bool{true, false, true},
	}
	v := videoAverage(res)
	assert.Equal(t, [][]float64{{2, 3}}, v.Rows)
	assert.Equal(t, []bool{true}, v.Valid)

	res.Valid = []bool{false, false, false}
	v = videoAverage(res)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, []bool{false}, v.Valid)
}

func useFakeExtractor(t *testing.T) {
	t.Setenv(fakeExtractorEnv, "1")
	prev := Cfg
	Cfg = &config.Config{
		Workers:         2,
		ExtractorCmd:    os.Args[0],
		ExtractorScript: "extract.py",
		WorkerTimeout:   30 * time.Second,
	}
	t.Cleanup(func() { Cfg = prev })
}

func writeProtocol(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protocol.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunExtractWithEngines(t *testing.T) {
	useFakeExtractor(t)
	opts := validExtractOptions(t)
	opts.ProtocolPath = writeProtocol(t, `database: replay
train:
  real: [real/client001, real/client002]
  attack: [attack/client001]
test:
  attack: [attack/client002]
`)

	require.NoError(t, runExtract(context.Background(), opts))

	for _, id := range []string{"real/client001", "real/client002", "attack/client001", "attack/client002"} {
		v, err := features.Load(opts.OutputDir, id)
		require.NoError(t, err, id)
		assert.Equal(t, []bool{true, false, true}, v.Valid)
		assert.True(t, features.IsMarker(v.Rows[1]))
		assert.Equal(t, 2.0, v.Rows[2][1])
		assert.Equal(t, float64(len(filepath.Join(opts.InputDir, id+".mov"))), v.Rows[0][0])
	}
}

func TestRunExtractVideoAverage(t *testing.T) {
	useFakeExtractor(t)
	opts := validExtractOptions(t)
	opts.Feature = "videolbp"
	opts.ProtocolPath = writeProtocol(t, "database: casia\ndevel:\n  real: [client007]\n")

	require.NoError(t, runExtract(context.Background(), opts))

	v, err := features.Load(opts.OutputDir, "client007")
	require.NoError(t, err)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, 1.0, v.Rows[0][1])
	assert.False(t, math.IsNaN(v.Rows[0][0]))
}

func TestRunExtractEnrollment(t *testing.T) {
	useFakeExtractor(t)
	opts := validExtractOptions(t)
	opts.Enrollment = true
	opts.ProtocolPath = writeProtocol(t, "database: replay\ntrain:\n  real: [real/client001]\nenroll: [enroll/client001]\n")

	require.NoError(t, runExtract(context.Background(), opts))
	assert.FileExists(t, features.FeaturePath(opts.OutputDir, "enroll/client001"))
	assert.NoFileExists(t, features.FeaturePath(opts.OutputDir, "real/client001"))
}

func TestRunExtractSurfacesEngineErrors(t *testing.T) {
	useFakeExtractor(t)
	opts := validExtractOptions(t)
	opts.ProtocolPath = writeProtocol(t, "database: replay\ntrain:\n  real: [real/client001]\n  attack: [attack/broken]\n")

	err := runExtract(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attack/broken")
	assert.Contains(t, err.Error(), "extractor error: cannot decode")
}

func TestSaveExtractionRejectsNaNInValidFrame(t *testing.T) {
	opts := validExtractOptions(t)
	tests := []struct {
		name string
		row  []float64
	}{
		{name: "all nan", row: []float64{math.NaN(), math.NaN()}},
		{name: "partial nan", row: []float64{1, math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &worker.ExtractResult{Rows: [][]float64{{1, 2}, tt.row}, Valid: []bool{true, true}}
			err := saveExtraction(opts, types.Video{ID: "real/client009"}, res)
			require.ErrorIs(t, err, types.ErrCorruptFrame)
			assert.Contains(t, err.Error(), "real/client009")
			assert.NoFileExists(t, features.FeaturePath(opts.OutputDir, "real/client009"))
		})
	}

	// NaN in an invalid frame is expected and becomes a marker row.
	res := &worker.ExtractResult{Rows: [][]float64{{1, 2}, {math.NaN(), 3}}, Valid: []bool{true, false}}
	require.NoError(t, saveExtraction(opts, types.Video{ID: "real/client010"}, res))
}

func TestRunExtractFailsFastOnNaNFrame(t *testing.T) {
	useFakeExtractor(t)
	opts := validExtractOptions(t)
	opts.ProtocolPath = writeProtocol(t, "database: replay\ntrain:\n  attack: [attack/nanframe]\n")

	err := runExtract(context.Background(), opts)
	require.ErrorIs(t, err, types.ErrCorruptFrame)
	assert.Contains(t, err.Error(), "attack/nanframe")
	assert.NoFileExists(t, features.FeaturePath(opts.OutputDir, "attack/nanframe"))
}

func TestRunExtractRejectsBoundingBoxOutsideMSU(t *testing.T) {
	opts := validExtractOptions(t)
	opts.BoundingBox = true
	opts.ProtocolPath = writeProtocol(t, "database: replay\ntrain:\n  real: [real/client001]\n")
	assert.Error(t, runExtract(context.Background(), opts))
}

func TestRunExtractEmptyProtocol(t *testing.T) {
	opts := validExtractOptions(t)
	opts.ProtocolPath = writeProtocol(t, "database: replay\n")
	assert.ErrorIs(t, runExtract(context.Background(), opts), types.ErrEmptyDataset)
}
