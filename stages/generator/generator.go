// Package generator is a source stage that emits a synthetic moving gradient. It has no inputs,
// so the worker runs it on its source interval.
package generator

import (
	"fmt"

	"github.com/YAMLcase/Heron/ndarray"
	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/stage"
	"github.com/YAMLcase/Heron/worker"
)

const BaseName = "Generator"

const maxSide = 4096

// Descriptor returns the stage descriptor.
func Descriptor() stage.Descriptor {
	return stage.Descriptor{
		BaseName:                BaseName,
		NodeAttributeNames:      []string{"Parameters", "Frame Out"},
		NodeAttributeType:       []stage.AttributeType{stage.Static, stage.Output},
		ParameterNames:          []string{"Visualisation", "Width", "Height", "Step"},
		ParameterTypes:          []string{"bool", "int", "int", "int"},
		ParametersDefaultValues: []any{false, 64, 48, 4},
		WorkerDefaultExecutable: "heron",
	}
}

// Generator keeps the frame counter between compute steps.
type Generator struct {
	frame int
}

// Work renders the next frame: a horizontal uint8 gradient shifted Step columns per frame.
func (g *Generator) Work(c *worker.Context, _ worker.Inputs, p params.Vector) ([]ndarray.Array, error) {
	w, h := int(p.Int("Width")), int(p.Int("Height"))
	if w < 1 || h < 1 || w > maxSide || h > maxSide {
		return nil, fmt.Errorf("generator: frame size %dx%d out of range", w, h)
	}
	shift := g.frame * int(p.Int("Step"))
	g.frame++

	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = byte(((x + shift) % w) * 255 / max(w-1, 1))
		}
	}
	out, err := ndarray.New(ndarray.Uint8, []int{h, w}, data)
	if err != nil {
		return nil, err
	}

	if c != nil {
		c.Visualize(p.Bool("Visualisation"))
		c.Show(out)
	}
	return []ndarray.Array{out}, nil
}

// Register adds the stage to r.
func Register(r *stage.Registry) error {
	g := &Generator{}
	return r.Register(stage.Stage{Descriptor: Descriptor(), Work: g.Work})
}
