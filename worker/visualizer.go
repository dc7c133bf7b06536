package worker

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/internal/mailbox"
	"github.com/YAMLcase/Heron/ndarray"
)

// Sink displays visualization frames.
type Sink interface {
	Show(name string, frame ndarray.Array) error
	Close() error
}

// Visualizer is the best-effort debugging side channel of a worker. It runs in its own
// goroutine and owns its enabled flag; other goroutines only send it commands and frames.
type Visualizer struct {
	name     string
	sink     Sink
	logger   *zap.Logger
	commands chan bool
	frames   *mailbox.Mailbox[ndarray.Array]
	enabled  atomic.Bool // mirror for Stats, never read by the loop
	shown    atomic.Uint64
}

func newVisualizer(name string, sink Sink, logger *zap.Logger) *Visualizer {
	return &Visualizer{
		name:     name,
		sink:     sink,
		logger:   logger,
		commands: make(chan bool, 1),
		frames:   mailbox.New[ndarray.Array](),
	}
}

// SetEnabled asks the visualizer to start or stop displaying frames. Only the newest pending
// command is kept.
func (v *Visualizer) SetEnabled(on bool) {
	for {
		select {
		case v.commands <- on:
			return
		default:
		}
		select {
		case <-v.commands:
		default:
		}
	}
}

// Offer hands a frame to the visualizer. Frames offered while disabled are discarded.
func (v *Visualizer) Offer(frame ndarray.Array) {
	if !frame.IsZero() {
		v.frames.Put("frame", frame)
	}
}

// Enabled reports the last applied state.
func (v *Visualizer) Enabled() bool { return v.enabled.Load() }

// Shown counts frames handed to the sink.
func (v *Visualizer) Shown() uint64 { return v.shown.Load() }

func (v *Visualizer) run(ctx context.Context) {
	defer v.frames.Close()
	enabled := false

	apply := func(on bool) {
		if on == enabled {
			return
		}
		enabled = on
		v.enabled.Store(on)
		if !on {
			if err := v.sink.Close(); err != nil {
				v.logger.Debug("visualization sink close failed", zap.Error(err))
			}
		}
		v.logger.Debug("visualization toggled", zap.Bool("enabled", on))
	}

	for {
		select {
		case <-ctx.Done():
			if enabled {
				_ = v.sink.Close()
			}
			return
		case on := <-v.commands:
			apply(on)
		case <-v.frames.Ready():
			// a command sent before the frame takes effect first
			select {
			case on := <-v.commands:
				apply(on)
			default:
			}
			_, frame, ok := v.frames.TryTake()
			if !ok || !enabled {
				continue
			}
			if err := v.sink.Show(v.name, frame); err != nil {
				v.logger.Debug("visualization frame dropped", zap.Error(err))
				continue
			}
			v.shown.Add(1)
		}
	}
}

// LogSink logs a summary of each frame at debug level.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Show(name string, frame ndarray.Array) error {
	s.Logger.Debug("visualization frame", zap.String("window", name), zap.Stringer("frame", frame))
	return nil
}

func (s LogSink) Close() error { return nil }

// PNGSink writes each frame to a directory as a PNG snapshot.
//
// Supported layouts: H×W (grayscale) and H×W×3 (RGB). Float frames are clamped to 0..255.
// Filename format: {name}_{seq:06d}_{timestamp}.png
type PNGSink struct {
	dir   string
	seq   atomic.Uint64
	saved atomic.Uint64
}

// NewPNGSink creates dir if needed.
func NewPNGSink(dir string) (*PNGSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create visualization directory: %w", err)
	}
	return &PNGSink{dir: dir}, nil
}

func (s *PNGSink) Show(name string, frame ndarray.Array) error {
	img, err := toImage(frame)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s_%06d_%s.png",
		sanitize(name), s.seq.Add(1), time.Now().Format("20060102_150405.000"))
	f, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("PNG encode failed: %w", err)
	}
	s.saved.Add(1)
	return nil
}

func (s *PNGSink) Close() error { return nil }

// Saved returns the number of written snapshots.
func (s *PNGSink) Saved() uint64 { return s.saved.Load() }

func toImage(frame ndarray.Array) (image.Image, error) {
	shape := frame.Shape()
	switch {
	case len(shape) == 2:
		h, w := shape[0], shape[1]
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			img.Pix[i] = clamp(frame.At(i))
		}
		return img, nil
	case len(shape) == 3 && shape[2] == 3:
		h, w := shape[0], shape[1]
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			img.Pix[i*4+0] = clamp(frame.At(i*3 + 0))
			img.Pix[i*4+1] = clamp(frame.At(i*3 + 1))
			img.Pix[i*4+2] = clamp(frame.At(i*3 + 2))
			img.Pix[i*4+3] = 255
		}
		return img, nil
	}
	return nil, fmt.Errorf("cannot render frame of shape %v", shape)
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

func sanitize(name string) string {
	out := []rune(name)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '#', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}
