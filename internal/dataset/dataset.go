// Package dataset concatenates per-video feature matrices into one matrix per
// class and split, keeping only valid frames.
package dataset

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/andresmejia3/spoofguard/internal/features"
	"github.com/andresmejia3/spoofguard/internal/types"
)

// Request describes one aggregation call.
type Request struct {
	Dir      string
	Videos   []types.Video
	Mode     features.Mode
	Workers  int
	Progress bool   // draw a progress bar on stderr
	Label    string // shown in the progress bar and logs, e.g. "devel/real"
}

// Matrix is the concatenation of the valid rows of every video, in input order.
// Dim is the feature width shared by every frame of every video, kept or not.
type Matrix struct {
	Rows   [][]float64
	Counts []int // kept rows per video, parallel to Request.Videos
	Dim    int
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.Rows) }

type loadResult struct {
	Index int
	Rows  [][]float64
	Width int // 0 for a video without frames
	Err   error
}

// Aggregate loads every video of req on a bounded worker pool and merges the
// results in input order. The first failing video aborts the whole call.
func Aggregate(ctx context.Context, req Request) (*Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = features.MaskFiltered
	}
	if req.Mode == features.ValidOnly {
		log.Warn().Str("set", req.Label).Msg("valid-only aggregation is deprecated, frames are filtered by NaN markers instead of masks")
	}
	workers := req.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(req.Videos) && len(req.Videos) > 0 {
		workers = len(req.Videos)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bar *progressbar.ProgressBar
	if req.Progress {
		bar = progressbar.NewOptions(len(req.Videos),
			progressbar.OptionSetDescription(fmt.Sprintf("📂 Loading %s", req.Label)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	taskChan := make(chan int, workers)
	resultsChan := make(chan loadResult, workers*2)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				rows, width, err := loadValidRows(req.Dir, req.Videos[idx].ID, req.Mode)
				select {
				case resultsChan <- loadResult{Index: idx, Rows: rows, Width: width, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(taskChan)
		for i := range req.Videos {
			select {
			case taskChan <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Workers may finish out of order; buffer until the next index arrives.
	buffer := make(map[int]loadResult)
	next := 0
	m := &Matrix{Counts: make([]int, len(req.Videos))}
	var firstErr error

	for res := range resultsChan {
		if firstErr != nil {
			continue
		}
		if res.Err != nil {
			firstErr = res.Err
			cancel()
			continue
		}
		buffer[res.Index] = res
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			if err := m.append(req.Videos[next].ID, next, r.Width, r.Rows); err != nil {
				firstErr = err
				cancel()
				break
			}
			if bar != nil {
				_ = bar.Add(1)
			}
			next++
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && next < len(req.Videos) {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	log.Debug().Str("set", req.Label).Int("videos", len(req.Videos)).Int("rows", m.Len()).Int("dim", m.Dim).Msg("dataset aggregated")
	return m, nil
}

func (m *Matrix) append(id string, idx, width int, rows [][]float64) error {
	if width > 0 {
		if m.Dim == 0 {
			m.Dim = width
		}
		if width != m.Dim {
			return fmt.Errorf("%w: video %s has %d-dimensional features, dataset has %d", types.ErrDimensionMismatch, id, width, m.Dim)
		}
	}
	for _, row := range rows {
		if len(row) != m.Dim {
			return fmt.Errorf("%w: video %s has %d-dimensional features, dataset has %d", types.ErrDimensionMismatch, id, len(row), m.Dim)
		}
		m.Rows = append(m.Rows, row)
	}
	m.Counts[idx] = len(rows)
	return nil
}

// loadValidRows returns the rows of one video whose frame is valid under mode,
// and the width of all its frames.
func loadValidRows(dir, id string, mode features.Mode) ([][]float64, int, error) {
	v, err := features.LoadForMode(dir, id, mode)
	if err != nil {
		return nil, 0, err
	}
	kept := make([][]float64, 0, len(v.Rows))
	for i, row := range v.Rows {
		if !v.Valid[i] {
			continue
		}
		if mode == features.MaskFiltered {
			// The mask claims this frame is usable, so it must hold real numbers.
			if marker, err := features.CheckRow(row); err != nil || marker {
				return nil, 0, fmt.Errorf("%w: video %s frame %d is flagged valid but holds NaN", types.ErrCorruptFrame, id, i)
			}
		}
		kept = append(kept, row)
	}
	return kept, v.Dim(), nil
}
