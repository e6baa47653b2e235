package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osGetwd = os.Getwd

// ErrNotFound is wrapped by the ConfigError returned when no document exists
// between the working directory and the filesystem root.
var ErrNotFound = errors.New("configuration file not found")

// ConfigError is the single error type surfaced for any discovery, read,
// decode or validation problem. Its message is meant to be shown verbatim.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Discover finds name starting at the working directory and walking upward,
// then loads it.
func Discover(name string) (*Project, error) {
	path, err := Find(name)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Find resolves the configuration document path. Absolute paths and paths
// that exist relative to the working directory are used as is; otherwise
// every parent directory is searched for the file's base name.
func Find(name string) (string, error) {
	if name == "" {
		name = DefaultFileName
	}

	if filepath.IsAbs(name) {
		if isFile(name) {
			return name, nil
		}
		return "", &ConfigError{Path: name, Err: ErrNotFound}
	}

	wd, err := osGetwd()
	if err != nil {
		return "", &ConfigError{Err: fmt.Errorf("determine working directory: %w", err)}
	}

	if candidate := filepath.Join(wd, name); isFile(candidate) {
		return candidate, nil
	}

	base := filepath.Base(name)
	dir := wd
	for {
		candidate := filepath.Join(dir, base)
		if isFile(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &ConfigError{Path: name, Err: fmt.Errorf("%w (searched from %s upward)", ErrNotFound, wd)}
		}
		dir = parent
	}
}

// Load reads, decodes, expands and validates the document at path.
func Load(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, &ConfigError{Path: abs, Err: err}
	}

	project, err := Parse(data, formatFor(abs))
	if err != nil {
		return nil, &ConfigError{Path: abs, Err: err}
	}
	project.Root = filepath.Dir(abs)
	return project, nil
}

// Format names a supported document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes a document onto the default project and validates it. The
// returned project has no Root; Load fills it in.
func Parse(data []byte, format Format) (*Project, error) {
	project := DefaultProject()

	switch format {
	case FormatTOML:
		// TOML is normalised through the YAML decoder so both encodings share
		// one set of decoding rules (string-form commands, durations).
		var raw map[string]interface{}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		normalised, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("normalise toml: %w", err)
		}
		data = normalised
		fallthrough
	case FormatYAML, "":
		if err := yaml.Unmarshal(data, &project); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	expand(&project)
	if err := normalise(&project); err != nil {
		return nil, err
	}
	return &project, nil
}

// normalise applies per-component defaults and validates the graph.
func normalise(p *Project) error {
	if p.Name == "" {
		p.Name = DefaultProjectName
	}

	policy, err := ParseStopPolicy(string(p.StopOn))
	if err != nil {
		return err
	}
	p.StopOn = policy

	if p.GracePeriod < 0 {
		return fmt.Errorf("gracePeriod must not be negative, got %s", p.GracePeriod)
	}
	if p.GracePeriod == 0 {
		p.GracePeriod = DefaultGracePeriod
	}

	seen := make(map[string]int, len(p.Components))
	for i := range p.Components {
		c := &p.Components[i]
		if c.Name == "" {
			return fmt.Errorf("component #%d has no name", i+1)
		}
		if first, dup := seen[c.Name]; dup {
			return fmt.Errorf("component name %q is used by components #%d and #%d", c.Name, first+1, i+1)
		}
		seen[c.Name] = i

		c.Color = strings.ToLower(strings.TrimSpace(c.Color))
		if c.Color == "" {
			c.Color = DefaultColor
		}
		if !validColor(c.Color) {
			return fmt.Errorf("component %q: unknown color %q (expected one of %s)", c.Name, c.Color, strings.Join(Colors, ", "))
		}
		if c.Delay < 0 {
			return fmt.Errorf("component %q: delay must not be negative", c.Name)
		}
		for j, step := range c.Init {
			if step.IsZero() {
				return fmt.Errorf("component %q: init step #%d has no command", c.Name, j+1)
			}
		}
	}
	return nil
}

func validColor(name string) bool {
	for _, c := range Colors {
		if c == name {
			return true
		}
	}
	return false
}

// expand substitutes ${VAR} and ${VAR:-default} references in the fields
// that commonly carry machine-specific values.
func expand(p *Project) {
	for i := range p.Components {
		c := &p.Components[i]
		c.Repo = expandEnv(c.Repo)
		c.Path = expandEnv(c.Path)
		c.Env = expandMap(c.Env)
		expandCommand(&c.Start)
		for j := range c.Init {
			expandCommand(&c.Init[j])
		}
	}
}

func expandCommand(cmd *Command) {
	cmd.Dir = expandEnv(cmd.Dir)
	cmd.Env = expandMap(cmd.Env)
}

func expandMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = expandEnv(v)
	}
	return out
}

func expandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
