// Package differencing is the two-input frame differencing stage.
package differencing

import (
	"fmt"

	"github.com/YAMLcase/Heron/ndarray"
	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/stage"
	"github.com/YAMLcase/Heron/worker"
)

const BaseName = "Differencing"

// Descriptor returns the stage descriptor.
func Descriptor() stage.Descriptor {
	return stage.Descriptor{
		BaseName:                BaseName,
		NodeAttributeNames:      []string{"Parameters", "Frame 1", "Frame 2", "Difference Out"},
		NodeAttributeType:       []stage.AttributeType{stage.Static, stage.Input, stage.Input, stage.Output},
		ParameterNames:          []string{"Visualisation", "frame2_minus_frame1"},
		ParameterTypes:          []string{"bool", "bool"},
		ParametersDefaultValues: []any{false, false},
		WorkerDefaultExecutable: "heron",
	}
}

// Work returns frame1 - frame2, or frame2 - frame1 when frame2_minus_frame1 is set. A second
// frame of another shape is resized to the first one's.
func Work(c *worker.Context, in worker.Inputs, p params.Vector) ([]ndarray.Array, error) {
	if in.Len() != 2 {
		return nil, fmt.Errorf("differencing: want 2 inputs, got %d", in.Len())
	}
	a, b := in.At(0), in.At(1)
	if !a.SameShape(b) {
		r, err := ndarray.ResizeTo(b, a.Shape())
		if err != nil {
			return nil, fmt.Errorf("differencing: %w", err)
		}
		b = r
	}
	if p.Bool("frame2_minus_frame1") {
		a, b = b, a
	}
	out, err := ndarray.Sub(a, b)
	if err != nil {
		return nil, fmt.Errorf("differencing: %w", err)
	}

	if c != nil {
		c.Visualize(p.Bool("Visualisation"))
		c.Show(out)
	}
	return []ndarray.Array{out}, nil
}

// Register adds the stage to r.
func Register(r *stage.Registry) error {
	return r.Register(stage.Stage{Descriptor: Descriptor(), Work: Work})
}
