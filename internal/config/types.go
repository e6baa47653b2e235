package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// Project is the top-level configuration document: the component graph of
// one development stack.
type Project struct {
	Name        string        `yaml:"name"`
	Components  []Component   `yaml:"components"`
	StopOn      StopPolicy    `yaml:"stopOn,omitempty"`      // Which component exits drain the stack
	GracePeriod time.Duration `yaml:"gracePeriod,omitempty"` // SIGTERM to SIGKILL escalation delay

	// Root is the directory holding the configuration document. Relative
	// component paths are resolved against it.
	Root string `yaml:"-"`
}

// StopPolicy decides which component exits stop the whole stack.
type StopPolicy string

const (
	// StopOnAny drains the stack when any component exits.
	StopOnAny StopPolicy = "any"
	// StopOnFailure drains the stack only when a component exits non-zero.
	StopOnFailure StopPolicy = "failure"
)

// ParseStopPolicy validates a stop policy name.
func ParseStopPolicy(s string) (StopPolicy, error) {
	switch StopPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case StopOnAny, "":
		return StopOnAny, nil
	case StopOnFailure:
		return StopOnFailure, nil
	default:
		return "", fmt.Errorf("unknown stop policy %q (expected %q or %q)", s, StopOnAny, StopOnFailure)
	}
}

// Component is one named unit of the stack.
type Component struct {
	Name  string            `yaml:"name"`
	Tags  []string          `yaml:"tags,omitempty"`
	Color string            `yaml:"color,omitempty"`
	Repo  string            `yaml:"repo,omitempty"` // Optional repository URL to clone during setup
	Path  string            `yaml:"path,omitempty"` // Working directory relative to the project root
	Env   map[string]string `yaml:"env,omitempty"`
	Delay int               `yaml:"delay,omitempty"` // Start delay in seconds
	Start Command           `yaml:"start,omitempty"`
	Init  []Command         `yaml:"init,omitempty"`
}

// Repository describes where a component's source comes from and where it
// must be checked out.
type Repository struct {
	URL  string
	Path string
}

// HasTag reports whether the component carries any of the given tags.
func (c Component) HasTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range c.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// StartDelay returns the configured start delay.
func (c Component) StartDelay() time.Duration {
	if c.Delay <= 0 {
		return 0
	}
	return time.Duration(c.Delay) * time.Second
}

// WorkDir resolves the component's working directory against root.
// Components without a path or repository run in root itself.
func (c Component) WorkDir(root string) string {
	rel := c.Path
	if rel == "" && c.Repo != "" {
		rel = c.Name
	}
	return resolve(root, rel)
}

// Repository returns the acquisition descriptor, or nil if the component is
// not cloned from a repository.
func (c Component) Repository(root string) *Repository {
	if c.Repo == "" {
		return nil
	}
	return &Repository{URL: c.Repo, Path: c.WorkDir(root)}
}

// Command describes one executable invocation.
type Command struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Dir     string            `yaml:"dir,omitempty"` // Overrides the component directory, relative to the project root
	Env     map[string]string `yaml:"env,omitempty"`
}

// IsZero reports whether no executable was configured.
func (c Command) IsZero() bool {
	return c.Command == ""
}

// String renders the command line for display, quoting words that
// contain whitespace or quotes.
func (c Command) String() string {
	if c.IsZero() && len(c.Args) == 0 {
		return ""
	}
	words := make([]string, 0, len(c.Args)+1)
	for _, w := range append([]string{c.Command}, c.Args...) {
		if w == "" || strings.ContainsAny(w, " \t\n'\"") {
			w = strconv.Quote(w)
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

// splitCommandLine splits line into words. Unbalanced quotes and unquoted
// shell operators are errors rather than silently dropped text.
func splitCommandLine(line string) ([]string, error) {
	p := shellwords.NewParser()
	words, err := p.Parse(line)
	if err != nil {
		return nil, err
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("shell operator at offset %d is not supported, wrap the command in sh -c", p.Position)
	}
	return words, nil
}

// UnmarshalYAML accepts either the mapping form or a plain command line
// such as `sh -c "npm run dev"`, which is split into words with shell
// quoting rules. Nothing is expanded; pipelines and redirections need an
// explicit shell.
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var line string
		if err := value.Decode(&line); err != nil {
			return err
		}
		words, err := splitCommandLine(line)
		if err != nil {
			return fmt.Errorf("line %d: command %q: %w", value.Line, line, err)
		}
		*c = Command{}
		if len(words) > 0 {
			c.Command = words[0]
			c.Args = words[1:]
		}
		return nil
	}

	type plain Command
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = Command(p)
	return nil
}

// WorkDir resolves the directory a command runs in for the given component.
func (c Command) WorkDir(component Component, root string) string {
	if c.Dir != "" {
		return resolve(root, c.Dir)
	}
	return component.WorkDir(root)
}

// Environ builds the environment for running cmd on behalf of component:
// base overridden by the component env, then by command env keys the
// component does not define. The result is sorted for determinism.
func Environ(base []string, component Component, cmd Command) []string {
	merged := make(map[string]string, len(base)+len(component.Env)+len(cmd.Env))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for k, v := range cmd.Env {
		merged[k] = v
	}
	for k, v := range component.Env {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func resolve(root, rel string) string {
	if rel == "" {
		return root
	}
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(root, rel)
}
