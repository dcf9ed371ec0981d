package depgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/pkgchain/internal/config"
	"github.com/vk/pkgchain/internal/ctxlog"
)

// ErrUnsortable indicates the sorter emitted fewer items than it was given,
// meaning a cycle survived validation. Unreachable as long as Validate ran
// first.
var ErrUnsortable = errors.New("dependency graph contains a residual cycle")

// MissingError indicates a depends_on reference to a name that does not
// exist in the item list.
type MissingError struct {
	Item   string
	Target string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("item %q depends on unknown item %q", e.Item, e.Target)
}

// CycleError indicates that following depends_on edges revisits an item.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Validate checks that every depends_on reference resolves and that the
// dependency relation is acyclic.
func Validate(ctx context.Context, items []config.Item) error {
	logger := ctxlog.FromContext(ctx)

	byName := make(map[string]*config.Item, len(items))
	for i := range items {
		byName[items[i].Name] = &items[i]
	}

	for _, it := range items {
		if it.DependsOn == "" {
			continue
		}
		if _, ok := byName[it.DependsOn]; !ok {
			return &MissingError{Item: it.Name, Target: it.DependsOn}
		}
	}

	// One outgoing edge per node, so each walk is a simple chain; a repeat
	// within the current walk is a cycle.
	for _, start := range items {
		onPath := map[string]bool{start.Name: true}
		path := []string{start.Name}
		cur := start.DependsOn
		for cur != "" {
			if onPath[cur] {
				return &CycleError{Path: append(path, cur)}
			}
			onPath[cur] = true
			path = append(path, cur)
			cur = byName[cur].DependsOn
		}
	}

	logger.Debug("Dependency validation passed.", "items", len(items))
	return nil
}

// Build constructs the adjacency map: item name to its zero-or-one
// dependency targets.
func Build(items []config.Item) map[string][]string {
	graph := make(map[string][]string, len(items))
	for _, it := range items {
		if it.DependsOn != "" {
			graph[it.Name] = []string{it.DependsOn}
		} else {
			graph[it.Name] = nil
		}
	}
	return graph
}

// TopoSort orders items so that every item appears strictly after its
// depends_on target. Ties among ready items are broken by discovery order,
// keeping the output stable across runs. Kahn's algorithm over the
// dependency -> dependent orientation.
func TopoSort(ctx context.Context, graph map[string][]string, items []config.Item) ([]config.Item, error) {
	logger := ctxlog.FromContext(ctx)

	byName := make(map[string]config.Item, len(items))
	indegree := make(map[string]int, len(items))
	dependents := make(map[string][]string, len(items))
	for _, it := range items {
		byName[it.Name] = it
		indegree[it.Name] = len(graph[it.Name])
	}
	for _, it := range items {
		for _, dep := range graph[it.Name] {
			dependents[dep] = append(dependents[dep], it.Name)
		}
	}

	// FIFO queue seeded in discovery order.
	var queue []string
	for _, it := range items {
		if indegree[it.Name] == 0 {
			queue = append(queue, it.Name)
		}
	}

	sorted := make([]config.Item, 0, len(items))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byName[name])

		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(items) {
		return nil, fmt.Errorf("%w: sorted %d of %d items", ErrUnsortable, len(sorted), len(items))
	}

	order := make([]string, len(sorted))
	for i, it := range sorted {
		order[i] = it.Name
	}
	logger.Debug("Topological sort complete.", "order", strings.Join(order, ", "))
	return sorted, nil
}
