// Package stage describes stage types: the static descriptor the graph editor consumes and the
// registry that maps a stage type to its work function.
package stage

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/topic"
	"github.com/YAMLcase/Heron/worker"
)

// AttributeType classifies a node attribute.
type AttributeType string

const (
	Static AttributeType = "Static"
	Input  AttributeType = "Input"
	Output AttributeType = "Output"
)

var (
	ErrInvalidDescriptor = errors.New("stage: invalid descriptor")
	ErrDuplicate         = errors.New("stage: already registered")
)

// Descriptor is the static description of a stage type.
type Descriptor struct {
	BaseName                string          `yaml:"base_name"`
	NodeAttributeNames      []string        `yaml:"node_attribute_names"`
	NodeAttributeType       []AttributeType `yaml:"node_attribute_type"`
	ParameterNames          []string        `yaml:"parameter_names"`
	ParameterTypes          []string        `yaml:"parameter_types"`
	ParametersDefaultValues []any           `yaml:"parameters_default_values"`
	WorkerDefaultExecutable string          `yaml:"worker_default_executable"`
}

// Schema seeds the parameter schema from the descriptor.
func (d Descriptor) Schema() (params.Schema, error) {
	return params.NewSchema(d.BaseName, d.ParameterNames, d.ParameterTypes, d.ParametersDefaultValues)
}

func (d Descriptor) attributes(t AttributeType) []string {
	var out []string
	for i, at := range d.NodeAttributeType {
		if at == t && i < len(d.NodeAttributeNames) {
			out = append(out, d.NodeAttributeNames[i])
		}
	}
	return out
}

// Inputs returns the names of the Input attributes.
func (d Descriptor) Inputs() []string { return d.attributes(Input) }

// Outputs returns the names of the Output attributes.
func (d Descriptor) Outputs() []string { return d.attributes(Output) }

// Validate checks the descriptor is self-consistent. The runtime only needs Schema to
// succeed; Validate is for tooling.
func (d Descriptor) Validate() error {
	var errs []error
	if d.BaseName == "" {
		errs = append(errs, errors.New("base_name is empty"))
	}
	if len(d.NodeAttributeNames) != len(d.NodeAttributeType) {
		errs = append(errs, fmt.Errorf("%d attribute names but %d attribute types",
			len(d.NodeAttributeNames), len(d.NodeAttributeType)))
	}
	for i, t := range d.NodeAttributeType {
		if !slices.Contains([]AttributeType{Static, Input, Output}, t) {
			errs = append(errs, fmt.Errorf("attribute %d has unknown type %q", i, t))
		}
	}
	if _, err := d.Schema(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidDescriptor, d.BaseName, errors.Join(errs...))
	}
	return nil
}

// LoadDescriptor reads a YAML descriptor.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return d, nil
}

// Stage is a registered stage type.
type Stage struct {
	Descriptor Descriptor
	Work       worker.WorkFunc
	EndOfLife  worker.EndOfLifeFunc
}

// Registry maps base names to stages. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register validates and adds s.
func (r *Registry) Register(s Stage) error {
	if err := s.Descriptor.Validate(); err != nil {
		return err
	}
	if s.Work == nil {
		return fmt.Errorf("%w %q: nil work function", ErrInvalidDescriptor, s.Descriptor.BaseName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stages[s.Descriptor.BaseName]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, s.Descriptor.BaseName)
	}
	r.stages[s.Descriptor.BaseName] = s
	return nil
}

// Lookup returns the stage registered under name.
func (r *Registry) Lookup(name string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the registered base names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for n := range r.stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SchemaFor returns the parameter schema of the stage owning stageTopic.
func (r *Registry) SchemaFor(stageTopic string) (params.Schema, bool) {
	id, err := topic.ParseStage(stageTopic)
	if err != nil {
		return params.Schema{}, false
	}
	s, ok := r.Lookup(id.OpName)
	if !ok {
		return params.Schema{}, false
	}
	schema, err := s.Descriptor.Schema()
	if err != nil {
		return params.Schema{}, false
	}
	return schema, true
}
