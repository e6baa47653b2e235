package setup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"conductor/internal/config"
)

// Environment variables holding clone credentials for https remotes.
const (
	EnvGitUser = "GIT_USER"
	EnvGitPAT  = "GIT_PAT"
)

// credentialHelper answers git's credential requests from the environment,
// so tokens never appear on a command line, in a log or in .git/config.
const credentialHelper = `!f() { test "$1" = get || exit 0; echo "username=${GIT_USER:-git}"; echo "password=${GIT_PAT}"; }; f`

// gitCommand runs a short git query and captures its output.
type gitCommand struct {
	binary string
	dir    string
	args   []string
}

func (c *gitCommand) run() (string, error) {
	cmd := exec.Command(c.binary, c.args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s", strings.Join(c.args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// targetState classifies the checkout path of a repository.
type targetState int

const (
	targetMissing targetState = iota
	targetEmpty
	targetOccupied
)

func inspectTarget(path string) (targetState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return targetMissing, nil
	}
	if err != nil {
		return targetOccupied, err
	}
	if !info.IsDir() {
		return targetOccupied, fmt.Errorf("%s exists and is not a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return targetOccupied, err
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); errors.Is(err, io.EOF) {
		return targetEmpty, nil
	}
	return targetOccupied, nil
}

// originURL returns the fetch URL of the origin remote of the checkout at
// path.
func originURL(binary, path string) (string, error) {
	out, err := (&gitCommand{binary: binary, dir: path, args: []string{"remote", "get-url", "origin"}}).run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// cloneCommand builds the clone invocation for repo. Credentials are
// supplied through a helper only when a token is available.
func cloneCommand(binary string, repo *config.Repository, root string, withCredentials bool) config.Command {
	env := map[string]string{"GIT_TERMINAL_PROMPT": "0"}
	if withCredentials {
		env["GIT_CONFIG_COUNT"] = "1"
		env["GIT_CONFIG_KEY_0"] = "credential.helper"
		env["GIT_CONFIG_VALUE_0"] = credentialHelper
	}
	return config.Command{
		Command: binary,
		Args:    []string{"clone", repo.URL, repo.Path},
		Dir:     root,
		Env:     env,
	}
}

// cloneComponent returns c as seen by its clone command: component env
// keys the clone sets itself are dropped so they cannot override the
// prompt and credential settings.
func cloneComponent(c config.Component, clone config.Command) config.Component {
	if len(c.Env) == 0 {
		return c
	}
	env := make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		if _, own := clone.Env[k]; !own {
			env[k] = v
		}
	}
	c.Env = env
	return c
}

// sameRepository compares two remote URLs ignoring credentials and the
// ".git" suffix.
func sameRepository(a, b string) bool {
	return normaliseRemote(a) == normaliseRemote(b)
}

func normaliseRemote(raw string) string {
	s := strings.TrimSpace(RedactURL(raw))
	s = strings.TrimSuffix(s, "/")
	return strings.TrimSuffix(s, ".git")
}

// RedactURL strips user information from URL-shaped remotes.
// scp-like remotes (git@host:org/repo) are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil || u.Scheme == "" {
		return raw
	}
	u.User = nil
	return u.String()
}
