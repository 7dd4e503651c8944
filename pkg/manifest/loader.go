package manifest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc/pool"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// CompositionKind is the kind of a document that lists other files as its
// resources. Entries are resolved relative to the document's directory.
const CompositionKind = "Kustomization"

var manifestExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// LoadResult is the outcome of a manifest load. Per-document failures are
// collected here rather than aborting the load.
type LoadResult struct {
	// Resources is the deduplicated resource list, sorted by
	// (namespace, kind, name).
	Resources []*resource.Resource

	// ParseErrors lists malformed documents encountered during the load.
	ParseErrors []*ParseError

	// IOErrors lists unreadable sources encountered during the load.
	IOErrors []*IOError

	// Duplicates lists identities that appeared more than once; the first
	// occurrence in sorted order wins.
	Duplicates []resource.Identity
}

// HasErrors reports whether any document failed to load or parse.
func (r *LoadResult) HasErrors() bool {
	return len(r.ParseErrors) > 0 || len(r.IOErrors) > 0
}

// Loader reads declarative manifests from files and directories.
// It performs no mutation of any kind.
type Loader struct {
	log logr.Logger

	// MaxConcurrency bounds the number of top-level paths loaded in
	// parallel. Default: 8.
	MaxConcurrency int
}

// NewLoader creates a manifest loader.
func NewLoader(log logr.Logger) *Loader {
	return &Loader{log: log, MaxConcurrency: 8}
}

// Load reads all manifests reachable from the given paths. Directories are
// walked recursively; composition documents pull in the files they list.
// Cancelling ctx stops the load between files and surfaces the cause.
// The returned error is otherwise non-nil only when nothing could be
// loaded at all.
func (l *Loader) Load(ctx context.Context, paths []string) (*LoadResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no manifest paths given")
	}

	result := &LoadResult{}
	var mu sync.Mutex

	// Top-level paths are independent, so fan out. Each worker appends
	// into the shared result under the mutex; determinism comes from the
	// final sort, not from completion order.
	p := pool.New().WithMaxGoroutines(l.maxConcurrency())
	for _, path := range paths {
		p.Go(func() {
			pr := &LoadResult{}
			l.loadPath(ctx, path, pr, map[string]bool{})
			mu.Lock()
			defer mu.Unlock()
			result.Resources = append(result.Resources, pr.Resources...)
			result.ParseErrors = append(result.ParseErrors, pr.ParseErrors...)
			result.IOErrors = append(result.IOErrors, pr.IOErrors...)
		})
	}
	p.Wait()

	resource.Sort(result.Resources)
	result.Resources, result.Duplicates = resource.Dedupe(result.Resources)
	sortParseErrors(result.ParseErrors)
	sortIOErrors(result.IOErrors)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("manifest load interrupted: %w", err)
	}
	if len(result.Resources) == 0 && result.HasErrors() {
		return result, fmt.Errorf("no resources loaded from %s: %d parse error(s), %d io error(s)",
			strings.Join(paths, ", "), len(result.ParseErrors), len(result.IOErrors))
	}
	return result, nil
}

func (l *Loader) maxConcurrency() int {
	if l.MaxConcurrency > 0 {
		return l.MaxConcurrency
	}
	return 8
}

// loadPath loads a file or directory into result. ancestry tracks the
// composition files currently being resolved so self-references fail
// instead of recursing forever.
func (l *Loader) loadPath(ctx context.Context, path string, result *LoadResult, ancestry map[string]bool) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		result.IOErrors = append(result.IOErrors, &IOError{Source: path, Err: err})
		return
	}

	if info.IsDir() {
		files, ioErrs := listManifestFiles(path)
		result.IOErrors = append(result.IOErrors, ioErrs...)
		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			l.loadFile(ctx, f, result, ancestry)
		}
		return
	}
	l.loadFile(ctx, path, result, ancestry)
}

// loadFile splits a multi-document file and parses each document.
func (l *Loader) loadFile(ctx context.Context, path string, result *LoadResult, ancestry map[string]bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if ancestry[abs] {
		result.ParseErrors = append(result.ParseErrors, &ParseError{
			Source:  path,
			Line:    1,
			Message: "composition references itself (directly or through another composition)",
		})
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		result.IOErrors = append(result.IOErrors, &IOError{Source: path, Err: err})
		return
	}

	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	line := 1
	for {
		doc, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.ParseErrors = append(result.ParseErrors, &ParseError{
				Source: path, Line: line, Message: err.Error(),
			})
			break
		}

		docLine := line
		line += bytes.Count(doc, []byte("\n")) + 1

		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		obj, perr := parseDocument(doc, path, docLine)
		if perr != nil {
			result.ParseErrors = append(result.ParseErrors, perr)
			continue
		}
		if obj == nil {
			continue // comments-only document
		}

		res, rerr := resource.FromUnstructured(obj, path)
		if rerr != nil {
			result.ParseErrors = append(result.ParseErrors, &ParseError{
				Source: path, Line: docLine, Message: rerr.Error(),
			})
			continue
		}
		result.Resources = append(result.Resources, res)

		if res.Identity.Kind == CompositionKind {
			l.resolveComposition(ctx, res, abs, result, ancestry)
		}
	}
}

// resolveComposition loads the files a composition document lists under its
// top-level resources field, relative to the document's directory.
func (l *Loader) resolveComposition(ctx context.Context, res *resource.Resource, absSource string, result *LoadResult, ancestry map[string]bool) {
	entries, found, err := unstructured.NestedStringSlice(res.Object.Object, "resources")
	if err != nil || !found {
		return
	}

	ancestry[absSource] = true
	defer delete(ancestry, absSource)

	base := filepath.Dir(absSource)
	for _, entry := range entries {
		target := entry
		if !filepath.IsAbs(target) {
			target = filepath.Join(base, entry)
		}
		l.loadPath(ctx, target, result, ancestry)
	}
}

// parseDocument unmarshals one YAML/JSON document into an unstructured
// object. A nil object with nil error means the document was empty.
func parseDocument(doc []byte, source string, line int) (*unstructured.Unstructured, *ParseError) {
	var m map[string]interface{}
	if err := yaml.Unmarshal(doc, &m); err != nil {
		return nil, &ParseError{Source: source, Line: line, Message: err.Error()}
	}
	if len(m) == 0 {
		return nil, nil
	}
	return &unstructured.Unstructured{Object: m}, nil
}

// listManifestFiles walks a directory tree collecting manifest files in
// lexical order.
func listManifestFiles(dir string) ([]string, []*IOError) {
	var files []string
	var ioErrs []*IOError
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			ioErrs = append(ioErrs, &IOError{Source: path, Err: err})
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if manifestExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		ioErrs = append(ioErrs, &IOError{Source: dir, Err: err})
	}
	sort.Strings(files)
	return files, ioErrs
}

func sortParseErrors(errs []*ParseError) {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Source != errs[j].Source {
			return errs[i].Source < errs[j].Source
		}
		return errs[i].Line < errs[j].Line
	})
}

func sortIOErrors(errs []*IOError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Source < errs[j].Source })
}
