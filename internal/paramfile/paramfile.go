// Package paramfile keeps a graph's parameters in a YAML file and republishes them whenever the
// file changes.
//
//	parameters:
//	  - topic: g##Canny##0
//	    values:
//	      Min Value: 50
//	      Max Value: 150
//
// Parameters missing from values keep their schema default.
package paramfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/YAMLcase/Heron/params"
)

const debounce = 100 * time.Millisecond

var ErrUnknownParameter = errors.New("paramfile: unknown parameter")

// Entry is one stage's parameters.
type Entry struct {
	Topic  string         `yaml:"topic"`
	Values map[string]any `yaml:"values"`
}

// File is the parameter file.
type File struct {
	Parameters []Entry `yaml:"parameters"`
}

// Load reads and parses path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read parameter file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse parameter file %s: %w", path, err)
	}
	return f, nil
}

// Vector lays e's values out in schema order over the defaults.
func (e Entry) Vector(s params.Schema) ([]any, error) {
	out := s.Defaults().Values()
	for name, v := range e.Values {
		i := indexOf(s.Names, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownParameter, name, e.Topic)
		}
		out[i] = v
	}
	return out, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Publisher sends parameter vectors into the graph.
type Publisher interface {
	Publish(stageTopic string, s params.Schema, values []any) error
}

// SchemaLookup resolves the parameter schema of a stage topic.
type SchemaLookup func(stageTopic string) (params.Schema, bool)

// Watcher republishes the file's entries when it changes.
type Watcher struct {
	path    string
	pub     Publisher
	schemas SchemaLookup
	logger  *zap.Logger

	current map[string][]any
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, pub Publisher, schemas SchemaLookup, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: path, pub: pub, schemas: schemas, logger: logger, current: make(map[string][]any)}
}

// Sync publishes every entry whose values changed since the last Sync and returns how many were
// published. One bad entry does not stop the others.
func (w *Watcher) Sync() (int, error) {
	f, err := Load(w.path)
	if err != nil {
		return 0, err
	}
	var errs []error
	published := 0
	for _, e := range f.Parameters {
		schema, ok := w.schemas(e.Topic)
		if !ok {
			errs = append(errs, fmt.Errorf("no schema for %q", e.Topic))
			continue
		}
		values, err := e.Vector(schema)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := w.current[e.Topic]; ok && reflect.DeepEqual(prev, values) {
			continue
		}
		if err := w.pub.Publish(e.Topic, schema, values); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Topic, err))
			continue
		}
		w.current[e.Topic] = values
		published++
		w.logger.Info("parameters published", zap.String("stage", e.Topic), zap.Any("values", values))
	}
	return published, errors.Join(errs...)
}

// Run publishes the file once, then again after every change, until ctx is done. The directory
// is watched rather than the file so that editors that replace the file are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("paramfile: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("paramfile: watch %s: %w", w.path, err)
	}

	w.sync()
	name := filepath.Clean(w.path)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			w.sync()
		}
	}
}

func (w *Watcher) sync() {
	if _, err := w.Sync(); err != nil {
		w.logger.Warn("parameter file partly applied", zap.String("path", w.path), zap.Error(err))
	}
}
