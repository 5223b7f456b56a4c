package agentloop

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a shell command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// DirEntry represents a filesystem directory entry.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" or "directory"
}

// ExecutionEnvironment abstracts where tool operations run. Tool bodies are
// thin adapters over this interface, so a sandboxed or remote environment
// can replace the local one without touching the loop.
type ExecutionEnvironment interface {
	// File operations.
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error
	AppendFile(path string, content string) error
	DeleteFile(path string) error

	// Directory operations.
	ListDirectory(path string) ([]DirEntry, error)
	CreateDirectory(path string) error
	DeleteDirectory(path string) error
	IsDirectory(path string) bool

	// Command execution.
	ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)
	SpawnTerminal(command string) error

	// Interactive prompt: block for one line of operator input.
	Prompt(question string) (string, error)

	// Metadata.
	WorkingDirectory() string
	Platform() string
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables excluded from spawned commands.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "PYENV_ROOT": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalEnvironment runs tools on the local machine, relative to a working
// directory. Interactive prompts read from In and write to Out, which
// default to stdin/stdout.
type LocalEnvironment struct {
	workingDir string
	In         io.Reader
	Out        io.Writer
}

// NewLocalEnvironment creates a local execution environment rooted at
// workingDir (the process working directory when empty).
func NewLocalEnvironment(workingDir string) *LocalEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalEnvironment{
		workingDir: workingDir,
		In:         os.Stdin,
		Out:        os.Stdout,
	}
}

func (e *LocalEnvironment) WorkingDirectory() string { return e.workingDir }

func (e *LocalEnvironment) Platform() string { return runtime.GOOS }

func (e *LocalEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

func (e *LocalEnvironment) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *LocalEnvironment) WriteFile(path string, content string) error {
	resolved := e.resolvePath(path)
	if dir := filepath.Dir(resolved); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(resolved, []byte(content), 0644)
}

func (e *LocalEnvironment) AppendFile(path string, content string) error {
	resolved := e.resolvePath(path)
	if dir := filepath.Dir(resolved); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func (e *LocalEnvironment) DeleteFile(path string) error {
	resolved := e.resolvePath(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("'%s' is a directory", path)
	}
	return os.Remove(resolved)
}

func (e *LocalEnvironment) ListDirectory(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(e.resolvePath(path))
	if err != nil {
		return nil, err
	}
	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "directory"
		}
		result = append(result, DirEntry{Name: entry.Name(), Type: kind})
	}
	return result, nil
}

func (e *LocalEnvironment) CreateDirectory(path string) error {
	return os.MkdirAll(e.resolvePath(path), 0755)
}

func (e *LocalEnvironment) DeleteDirectory(path string) error {
	return os.RemoveAll(e.resolvePath(path))
}

func (e *LocalEnvironment) IsDirectory(path string) bool {
	info, err := os.Stat(e.resolvePath(path))
	return err == nil && info.IsDir()
}

func (e *LocalEnvironment) ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workingDir

	// Process group so a timed-out command tree can be killed cleanly.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = filterEnvironment()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}

	return result, nil
}

// SpawnTerminal launches a command in a new Terminal window. Darwin only;
// the spawned process runs independently and its output is not captured.
func (e *LocalEnvironment) SpawnTerminal(command string) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("run_in_new_terminal only works on macOS")
	}
	escaped := strings.ReplaceAll(command, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	script := fmt.Sprintf(`tell application "Terminal" to do script "%s" activate`, escaped)
	return exec.Command("osascript", "-e", script).Run()
}

func (e *LocalEnvironment) Prompt(question string) (string, error) {
	fmt.Fprintf(e.Out, "\n[AGENT ASKS] %s\nYour Response>> ", question)
	reader := bufio.NewReader(e.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
