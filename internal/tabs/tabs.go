// Package tabs wires page regions into tab groups and restores the active
// tab from a URL fragment.
package tabs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/sectionloader/internal/logging"
)

// GroupConfig declares one tab container and the region ids it shows, in
// order.
type GroupConfig struct {
	Container string   `mapstructure:"container" yaml:"container" json:"container"`
	Panels    []string `mapstructure:"panels" yaml:"panels" json:"panels"`
}

// DefaultGroups returns the two tab containers of the operations page.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Container: "tab-content-container",
			Panels:    []string{"pick-content", "feed-content", "optimize-content", "sani-content", "autopublish-content"},
		},
		{
			Container: "validation-subtabs",
			Panels:    []string{"validation-cid-content", "validation-cred-content"},
		},
	}
}

// Panel is one tab.
type Panel struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Group is an initialised tab container.
type Group struct {
	ID     string  `json:"id"`
	Panels []Panel `json:"panels"`
}

// RegionLookup reports whether a region exists.
type RegionLookup func(id string) bool

// Navigator owns tab state for the page.
type Navigator struct {
	configs []GroupConfig
	labels  map[string]string
	exists  RegionLookup
	logger  logging.Logger
	title   cases.Caser

	mu          sync.RWMutex
	groups      []Group
	initialized bool
}

// NewNavigator creates a Navigator. labels overrides the generated label for
// a region id. exists may be nil, in which case every panel is kept.
func NewNavigator(configs []GroupConfig, labels map[string]string, exists RegionLookup, logger logging.Logger) *Navigator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if exists == nil {
		exists = func(string) bool { return true }
	}
	return &Navigator{
		configs: configs,
		labels:  labels,
		exists:  exists,
		logger:  logger.WithComponent("tabs"),
		title:   cases.Title(language.English),
	}
}

// Init builds the tab groups. Panels whose region does not exist are left
// out, and a group with no panels is skipped entirely. The first panel of
// every group starts active. Calling Init again rebuilds the groups.
func (n *Navigator) Init(ctx context.Context) error {
	groups := make([]Group, 0, len(n.configs))
	seen := make(map[string]string)

	for _, cfg := range n.configs {
		if cfg.Container == "" {
			return fmt.Errorf("tab group with empty container id")
		}
		g := Group{ID: cfg.Container}
		for _, id := range cfg.Panels {
			if other, dup := seen[id]; dup {
				return fmt.Errorf("panel %q appears in both %q and %q", id, other, cfg.Container)
			}
			seen[id] = cfg.Container
			if !n.exists(id) {
				n.logger.Debug(ctx, "panel region missing, skipped", "group", cfg.Container, "panel", id)
				continue
			}
			g.Panels = append(g.Panels, Panel{ID: id, Label: n.Label(id)})
		}
		if len(g.Panels) == 0 {
			n.logger.Debug(ctx, "tab group has no panels, skipped", "group", cfg.Container)
			continue
		}
		g.Panels[0].Active = true
		groups = append(groups, g)
	}

	n.mu.Lock()
	n.groups = groups
	n.initialized = true
	n.mu.Unlock()

	n.logger.Info(ctx, "Tabs ready", "groups", len(groups))
	return nil
}

// Initialized reports whether Init has run.
func (n *Navigator) Initialized() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.initialized
}

// Groups returns a copy of the current tab state.
func (n *Navigator) Groups() []Group {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Group, len(n.groups))
	for i, g := range n.groups {
		out[i] = Group{ID: g.ID, Panels: append([]Panel(nil), g.Panels...)}
	}
	return out
}

// Activate selects the panel named by a URL fragment such as "#feed-content".
// It returns the group and index activated, and false when the fragment
// names no known panel or Init has not run.
func (n *Navigator) Activate(hash string) (string, int, bool) {
	id := strings.TrimPrefix(strings.TrimSpace(hash), "#")
	if id == "" {
		return "", 0, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for gi := range n.groups {
		g := &n.groups[gi]
		for pi := range g.Panels {
			if g.Panels[pi].ID != id {
				continue
			}
			for k := range g.Panels {
				g.Panels[k].Active = k == pi
			}
			return g.ID, pi, true
		}
	}
	return "", 0, false
}

// Grouped reports whether a region id belongs to an initialised group.
func (n *Navigator) Grouped(id string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, g := range n.groups {
		for _, p := range g.Panels {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}

// Label returns the display label of a region id: the configured override,
// or the id without its "-content" suffix in title case.
func (n *Navigator) Label(id string) string {
	if l, ok := n.labels[id]; ok && l != "" {
		return l
	}
	base := strings.TrimSuffix(id, "-content")
	return n.title.String(strings.ReplaceAll(base, "-", " "))
}
