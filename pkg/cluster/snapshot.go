// Package cluster fetches a read-only resource snapshot from a live
// cluster. It only lists; nothing here mutates cluster state.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc/pool"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// FetchTimeoutWarning records a list call that hit its deadline. The
// snapshot continues with partial data; the warning is surfaced in
// reports rather than silently dropped.
type FetchTimeoutWarning struct {
	Namespace string `json:"namespace,omitempty"`
	Kind      string `json:"kind"`
	Timeout   string `json:"timeout"`
}

func (w *FetchTimeoutWarning) String() string {
	if w.Namespace == "" {
		return fmt.Sprintf("listing %s timed out after %s; snapshot is partial", w.Kind, w.Timeout)
	}
	return fmt.Sprintf("listing %s in namespace %s timed out after %s; snapshot is partial", w.Kind, w.Namespace, w.Timeout)
}

// Result is a fetched snapshot with any partial-data warnings.
type Result struct {
	// Resources is sorted by (namespace, kind, name) and deduplicated.
	Resources []*resource.Resource

	Timeouts []*FetchTimeoutWarning

	// Errors lists non-timeout list failures; fatal only when the
	// snapshot ends up empty.
	Errors []error
}

// defaultKinds is the set of list targets for a snapshot.
var defaultKinds = []schema.GroupVersionKind{
	{Version: "v1", Kind: "Namespace"},
	{Version: "v1", Kind: "ConfigMap"},
	{Version: "v1", Kind: "Secret"},
	{Version: "v1", Kind: "Service"},
	{Version: "v1", Kind: "ServiceAccount"},
	{Version: "v1", Kind: "PersistentVolumeClaim"},
	{Group: "apps", Version: "v1", Kind: "Deployment"},
	{Group: "apps", Version: "v1", Kind: "StatefulSet"},
	{Group: "apps", Version: "v1", Kind: "DaemonSet"},
	{Group: "batch", Version: "v1", Kind: "Job"},
	{Group: "batch", Version: "v1", Kind: "CronJob"},
	{Group: "networking.k8s.io", Version: "v1", Kind: "Ingress"},
	{Group: "networking.k8s.io", Version: "v1", Kind: "NetworkPolicy"},
	{Group: "storage.k8s.io", Version: "v1", Kind: "StorageClass"},
}

var clusterScopedKinds = map[string]bool{
	"Namespace":    true,
	"StorageClass": true,
}

// Snapshotter lists resources through a read-only client.
type Snapshotter struct {
	reader client.Reader
	log    logr.Logger

	// Kinds overrides the default list targets when non-empty.
	Kinds []schema.GroupVersionKind

	// FetchTimeout bounds each individual list call. Default: 30s.
	FetchTimeout time.Duration

	// MaxConcurrency bounds parallel list calls. Default: 8.
	MaxConcurrency int
}

// NewSnapshotter creates a snapshotter over the given read-only client.
func NewSnapshotter(reader client.Reader, log logr.Logger) *Snapshotter {
	return &Snapshotter{
		reader:         reader,
		log:            log,
		FetchTimeout:   30 * time.Second,
		MaxConcurrency: 8,
	}
}

// Snapshot lists every configured kind across the given namespaces (all
// namespaces when empty). List calls are independent and run in
// parallel; determinism comes from the final sort. The returned error is
// non-nil only when nothing could be fetched at all.
func (s *Snapshotter) Snapshot(ctx context.Context, namespaces []string) (*Result, error) {
	kinds := s.Kinds
	if len(kinds) == 0 {
		kinds = defaultKinds
	}

	type target struct {
		gvk       schema.GroupVersionKind
		namespace string // empty means all / cluster-scoped
	}
	var targets []target
	for _, gvk := range kinds {
		if clusterScopedKinds[gvk.Kind] || len(namespaces) == 0 {
			targets = append(targets, target{gvk: gvk})
			continue
		}
		for _, ns := range namespaces {
			targets = append(targets, target{gvk: gvk, namespace: ns})
		}
	}

	result := &Result{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(s.maxConcurrency())
	for _, t := range targets {
		p.Go(func() {
			resources, err := s.list(ctx, t.gvk, t.namespace)
			mu.Lock()
			defer mu.Unlock()
			result.Resources = append(result.Resources, resources...)
			if err == nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				result.Timeouts = append(result.Timeouts, &FetchTimeoutWarning{
					Namespace: t.namespace,
					Kind:      t.gvk.Kind,
					Timeout:   s.fetchTimeout().String(),
				})
				return
			}
			result.Errors = append(result.Errors, fmt.Errorf("listing %s in %q: %w", t.gvk.Kind, t.namespace, err))
		})
	}
	p.Wait()

	resource.Sort(result.Resources)
	result.Resources, _ = resource.Dedupe(result.Resources)

	if len(result.Resources) == 0 && (len(result.Errors) > 0 || len(result.Timeouts) > 0) {
		return result, fmt.Errorf("cluster snapshot is empty: %d list failure(s), %d timeout(s)",
			len(result.Errors), len(result.Timeouts))
	}
	return result, nil
}

func (s *Snapshotter) list(ctx context.Context, gvk schema.GroupVersionKind, namespace string) ([]*resource.Resource, error) {
	listCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
	defer cancel()

	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(schema.GroupVersionKind{
		Group:   gvk.Group,
		Version: gvk.Version,
		Kind:    gvk.Kind + "List",
	})

	var opts []client.ListOption
	if namespace != "" {
		opts = append(opts, client.InNamespace(namespace))
	}
	if err := s.reader.List(listCtx, list, opts...); err != nil {
		return nil, err
	}

	var out []*resource.Resource
	for i := range list.Items {
		item := &list.Items[i]
		source := fmt.Sprintf("cluster://%s/%s/%s", item.GetNamespace(), gvk.Kind, item.GetName())
		r, err := resource.FromUnstructured(item, source)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Snapshotter) fetchTimeout() time.Duration {
	if s.FetchTimeout > 0 {
		return s.FetchTimeout
	}
	return 30 * time.Second
}

func (s *Snapshotter) maxConcurrency() int {
	if s.MaxConcurrency > 0 {
		return s.MaxConcurrency
	}
	return 8
}
