package worker

import (
	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/ndarray"
	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/topic"
)

// WorkFunc is a stage's transform. It runs on the reactor goroutine with the current inputs and
// parameter vector and returns one array per output; output k is routed to the stage's k-th
// sending topic. Returning no arrays (or only empty ones) is a null result: nothing is emitted.
type WorkFunc func(c *Context, in Inputs, p params.Vector) ([]ndarray.Array, error)

// EndOfLifeFunc runs once when the worker dies of liveness loss, before the process exits.
type EndOfLifeFunc func(c *Context)

// Context is the per-process handle passed to work functions and hooks. It is created once by
// New and stays valid for the life of the worker.
type Context struct {
	Identity topic.StageIdentity
	Logger   *zap.Logger

	w *Worker
}

// Visualize enables or disables the visualization side channel.
func (c *Context) Visualize(on bool) { c.w.vis.SetEnabled(on) }

// Show offers a frame to the visualization side channel.
func (c *Context) Show(frame ndarray.Array) { c.w.vis.Offer(frame) }

// State returns the worker lifecycle state.
func (c *Context) State() State { return c.w.State() }

// Parameters returns the live parameter vector.
func (c *Context) Parameters() params.Vector { return c.w.params.Load() }
