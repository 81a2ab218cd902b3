package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/devpulse/sentiment-api/internal/models"
)

// ErrAliasCycle is returned when the alias graph loops. The registry is
// expected to prevent cycles at merge time; the resolver still refuses to
// walk one forever.
var ErrAliasCycle = errors.New("alias graph cycle detected")

// Resolver maps raw detector names to canonical tool IDs by following the
// alias graph to its primary tool. Safe for concurrent use; Load swaps in
// a fresh registry snapshot.
type Resolver struct {
	mu      sync.RWMutex
	byName  map[string]string // lowercased tool/alias name -> tool id
	primary map[string]string // alias tool id -> primary tool id
}

func NewResolver() *Resolver {
	return &Resolver{
		byName:  make(map[string]string),
		primary: make(map[string]string),
	}
}

// Load replaces the resolver's snapshot of the registry.
func (r *Resolver) Load(tools []models.Tool, aliases []models.ToolAlias) {
	byName := make(map[string]string, len(tools)+len(aliases))
	primary := make(map[string]string, len(aliases))

	for _, tool := range tools {
		byName[strings.ToLower(tool.Name)] = tool.ID
	}
	for _, alias := range aliases {
		if alias.AliasName != "" {
			byName[strings.ToLower(alias.AliasName)] = alias.AliasToolID
		}
		primary[alias.AliasToolID] = alias.PrimaryToolID
	}

	r.mu.Lock()
	r.byName = byName
	r.primary = primary
	r.mu.Unlock()
}

// Names returns every known tool and alias name, for seeding the keyword
// detector.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a raw candidate name to a canonical tool ID. The second
// result is false when the name is unknown to the registry.
func (r *Resolver) Resolve(rawName string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	toolID, ok := r.byName[strings.ToLower(strings.TrimSpace(rawName))]
	if !ok {
		return "", false, nil
	}
	canonical, err := r.canonicalLocked(toolID)
	if err != nil {
		return "", false, err
	}
	return canonical, true, nil
}

// Canonical follows alias edges from a tool ID to its primary tool.
func (r *Resolver) Canonical(toolID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalLocked(toolID)
}

func (r *Resolver) canonicalLocked(toolID string) (string, error) {
	visited := map[string]bool{toolID: true}
	current := toolID
	for {
		next, ok := r.primary[current]
		if !ok {
			return current, nil
		}
		if visited[next] {
			return "", fmt.Errorf("%w: via %s", ErrAliasCycle, current)
		}
		visited[next] = true
		current = next
	}
}

// Associations runs detection and resolution over content text and returns
// the deduplicated, sorted set of canonical tool IDs. Detections below
// MinConfidence and names unknown to the registry are dropped.
func Associations(ctx context.Context, detector Detector, resolver *Resolver, text string) ([]string, error) {
	detections, err := detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	set := make(map[string]bool, len(detections))
	for _, det := range detections {
		if det.Confidence < MinConfidence {
			continue
		}
		canonical, ok, err := resolver.Resolve(det.RawName)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", det.RawName, err)
		}
		if !ok {
			continue
		}
		set[canonical] = true
	}

	toolIDs := make([]string, 0, len(set))
	for id := range set {
		toolIDs = append(toolIDs, id)
	}
	sort.Strings(toolIDs)
	return toolIDs, nil
}
