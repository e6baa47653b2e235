// Package selector decides which components of a project an invocation acts on.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"conductor/internal/config"
)

// ErrNotFound is matched by the error returned for an unknown component name.
var ErrNotFound = errors.New("component not found")

// NotFoundError reports an explicit component name missing from the graph.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("component %q not found: the project defines no components", e.Name)
	}
	return fmt.Sprintf("component %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Select returns the components to act on, in declaration order.
//
// An explicit name wins over tags and must exist. Otherwise a non-empty tag
// set keeps every component carrying at least one of the tags; no match is an
// empty result, not an error. Without filters every component is returned.
func Select(project *config.Project, name string, tags []string) ([]config.Component, error) {
	if project == nil {
		return nil, nil
	}

	if name != "" {
		for _, c := range project.Components {
			if c.Name == name {
				return []config.Component{c}, nil
			}
		}
		return nil, &NotFoundError{Name: name, Available: Names(project.Components)}
	}

	if len(tags) > 0 {
		selected := make([]config.Component, 0, len(project.Components))
		for _, c := range project.Components {
			if c.HasTag(tags) {
				selected = append(selected, c)
			}
		}
		return selected, nil
	}

	all := make([]config.Component, len(project.Components))
	copy(all, project.Components)
	return all, nil
}

// ParseTags splits a comma separated --tags value, dropping blanks and
// repeated tags while keeping first-seen order.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// Names lists component names in order.
func Names(components []config.Component) []string {
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = c.Name
	}
	return names
}
