// Package catalog loads tool catalogs, one ordered list of tools per toolkit.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/tidwall/jsonc"
	"golang.org/x/sync/errgroup"
)

// Load decodes a catalog: a JSON array of tools, comments allowed.
// Entries must carry a name and a function name, and function names must be
// unique within the catalog.
func Load(r io.Reader) ([]core.Tool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read catalog")
	}

	var tools []core.Tool
	if err := json.Unmarshal(jsonc.ToJSON(data), &tools); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to decode catalog")
	}
	if len(tools) == 0 {
		return nil, errors.New(errors.InvalidInput, "catalog is empty")
	}

	seen := make(map[string]int, len(tools))
	for i, tool := range tools {
		if strings.TrimSpace(tool.Name) == "" || strings.TrimSpace(tool.FunctionName) == "" {
			return nil, errors.WithFields(
				errors.New(errors.ValidationFailed, "tool is missing a name or function name"),
				errors.Fields{"index": i},
			)
		}
		if prev, ok := seen[tool.FunctionName]; ok {
			return nil, errors.WithFields(
				errors.New(errors.ValidationFailed, "duplicate function name"),
				errors.Fields{"function_name": tool.FunctionName, "index": i, "first_index": prev},
			)
		}
		seen[tool.FunctionName] = i
	}
	return tools, nil
}

// LoadFile loads a catalog from path.
func LoadFile(path string) ([]core.Tool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to open catalog"),
			errors.Fields{"path": path},
		)
	}
	defer f.Close()

	tools, err := Load(f)
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{"path": path})
	}
	return tools, nil
}

// Source provides the tool list of a toolkit.
type Source interface {
	Tools(ctx context.Context, toolkit core.Toolkit) ([]core.Tool, error)
}

// Library loads each toolkit's catalog on first use and serves it
// read-only afterwards. It is safe for concurrent use.
type Library struct {
	paths map[core.Toolkit]string

	mu      sync.Mutex
	entries map[core.Toolkit]*entry
}

type entry struct {
	once  sync.Once
	tools []core.Tool
	err   error
}

var _ Source = (*Library)(nil)

// NewLibrary creates a library backed by files.
func NewLibrary(paths core.CatalogPaths) *Library {
	return &Library{
		paths: map[core.Toolkit]string{
			core.ToolkitScale: paths.Scale,
			core.ToolkitUnit:  paths.Unit,
		},
		entries: make(map[core.Toolkit]*entry),
	}
}

// NewStaticLibrary creates a library over in-memory catalogs.
func NewStaticLibrary(catalogs map[core.Toolkit][]core.Tool) *Library {
	lib := &Library{entries: make(map[core.Toolkit]*entry)}
	for toolkit, tools := range catalogs {
		e := &entry{tools: tools}
		e.once.Do(func() {})
		lib.entries[toolkit] = e
	}
	return lib
}

// Tools returns the catalog of toolkit, loading it on first use.
func (l *Library) Tools(ctx context.Context, toolkit core.Toolkit) ([]core.Tool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	e, ok := l.entries[toolkit]
	if !ok {
		path, known := l.paths[toolkit]
		if !known || path == "" {
			l.mu.Unlock()
			return nil, errors.WithFields(
				errors.New(errors.ResourceNotFound, "no catalog for toolkit"),
				errors.Fields{"toolkit": toolkit},
			)
		}
		e = &entry{}
		l.entries[toolkit] = e
	}
	l.mu.Unlock()

	e.once.Do(func() {
		e.tools, e.err = LoadFile(l.paths[toolkit])
	})
	if e.err != nil {
		return nil, e.err
	}
	if len(e.tools) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "catalog is empty"),
			errors.Fields{"toolkit": toolkit},
		)
	}
	return e.tools, nil
}

// Preload loads every toolkit's catalog concurrently.
func (l *Library) Preload(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, toolkit := range core.Toolkits {
		g.Go(func() error {
			_, err := l.Tools(ctx, toolkit)
			return err
		})
	}
	return g.Wait()
}
