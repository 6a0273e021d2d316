package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/spoofguard/internal/utils" // Using the SafeCommand wrapper
)

// MaxResponseSize bounds a single extractor response body.
const MaxResponseSize = 1 << 30

// ExtractRequest asks the extractor for the per-frame features of one video.
type ExtractRequest struct {
	VideoPath string `json:"video_path"`
	FaceFile  string `json:"face_file"`
	Database  string `json:"database"`
	Rotated   bool   `json:"rotated"`

	Feature        string `json:"feature"` // lbp, mslbp, hog
	LBPType        string `json:"lbp_type"`
	ELBPType       string `json:"elbp_type"`
	Blocks         int    `json:"blocks"`
	Circular       bool   `json:"circular"`
	Overlap        bool   `json:"overlap"`
	NormFaceSize   int    `json:"norm_face_size"`
	FaceSizeFilter int    `json:"face_size_filter"`
	NoNorm         bool   `json:"no_norm"`
	BoundingBox    bool   `json:"bounding_box"`

	Cell         int `json:"cell,omitempty"`
	CellOverlap  int `json:"cell_overlap,omitempty"`
	Block        int `json:"block,omitempty"`
	BlockOverlap int `json:"block_overlap,omitempty"`
}

// ExtractResult is the decoded extractor answer. Rows of invalid frames are
// whatever the extractor sent; the feature store overwrites them with markers.
type ExtractResult struct {
	Rows  [][]float64
	Valid []bool
}

// Config controls how an engine process is started.
type Config struct {
	Command     string   // interpreter, e.g. python3
	Args        []string // script and fixed arguments
	ReadTimeout time.Duration
}

// Engine is one running extractor process.
type Engine struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewEngine starts an extractor process. Responses come back over an extra
// pipe passed as FD 3 so the process may log freely on stdout and stderr.
func NewEngine(ctx context.Context, id int, cfg Config) (*Engine, error) {
	py := utils.NewSafeCommand(ctx, cfg.Command, cfg.Args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}

	// Only the child keeps the write end.
	w.Close()

	log.Debug().Int("engine", id).Str("cmd", py.String()).Msg("extractor started")
	return &Engine{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one framed request and returns the framed response body.
func (e *Engine) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(e.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write(data); err != nil {
		return nil, err
	}

	if e.ReadTimeout > 0 {
		if d, ok := e.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok {
			if err := d.SetReadDeadline(time.Now().Add(e.ReadTimeout)); err != nil {
				return nil, err
			}
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(e.DataPipe, header); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("engine %d did not answer within %s", e.ID, e.ReadTimeout)
		}
		return nil, err // a crashed extractor surfaces here
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > MaxResponseSize {
		return nil, fmt.Errorf("engine %d announced a %d byte response, limit is %d", e.ID, respLen, MaxResponseSize)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(e.DataPipe, respBody)
	return respBody, err
}

// Extract runs one request through the extractor.
func (e *Engine) Extract(req ExtractRequest) (*ExtractResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := e.Communicate(payload)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(resp)
}

// DecodeResponse parses a response body.
//
//	[status u8]
//	status 0: [frames u32][dim u32][valid u8 × frames][float64 × frames·dim]
//	status 1: [msgLen u32][msg]
func DecodeResponse(resp []byte) (*ExtractResult, error) {
	buf := bytes.NewReader(resp)

	status, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty extractor response")
	}

	if status == 1 {
		var msgLen uint32
		if err := binary.Read(buf, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed extractor error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(buf, msg); err != nil {
			return nil, fmt.Errorf("malformed extractor error: %w", err)
		}
		return nil, fmt.Errorf("extractor error: %s", msg)
	}
	if status != 0 {
		return nil, fmt.Errorf("unknown extractor status %d", status)
	}

	var frames, dim uint32
	if err := binary.Read(buf, binary.BigEndian, &frames); err != nil {
		return nil, fmt.Errorf("malformed extractor response: %w", err)
	}
	if err := binary.Read(buf, binary.BigEndian, &dim); err != nil {
		return nil, fmt.Errorf("malformed extractor response: %w", err)
	}
	want := int64(frames) + 8*int64(frames)*int64(dim)
	if int64(buf.Len()) != want {
		return nil, fmt.Errorf("malformed extractor response: %d payload bytes for %d×%d frames, want %d", buf.Len(), frames, dim, want)
	}

	res := &ExtractResult{
		Rows:  make([][]float64, frames),
		Valid: make([]bool, frames),
	}
	flags := make([]byte, frames)
	if _, err := io.ReadFull(buf, flags); err != nil {
		return nil, fmt.Errorf("malformed extractor response: %w", err)
	}
	for i, f := range flags {
		res.Valid[i] = f != 0
	}

	raw := make([]byte, 8*dim)
	for i := range res.Rows {
		if _, err := io.ReadFull(buf, raw); err != nil {
			return nil, fmt.Errorf("malformed extractor response: frame %d: %w", i, err)
		}
		row := make([]float64, dim)
		for j := range row {
			row[j] = math.Float64frombits(binary.BigEndian.Uint64(raw[8*j:]))
		}
		res.Rows[i] = row
	}
	return res, nil
}

// Close shuts the extractor down and waits for it to exit.
func (e *Engine) Close() error {
	e.Stdin.Close()
	e.DataPipe.Close()
	if e.Cmd == nil {
		return nil
	}
	return e.Cmd.Wait()
}
