package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Limits applied inside the shell tool, before dispatcher-level truncation.
const (
	commandOutputLimit = 4000
	searchMatchLimit   = 50
)

// GetStringArg extracts a string argument from a tool input mapping.
func GetStringArg(input map[string]interface{}, key string) (string, bool) {
	v, ok := input[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// RegisterCoreTools registers the full tool catalogue on a Registry. The
// tools delegate to the provided ExecutionEnvironment. commandTimeout bounds
// synchronous shell execution.
func RegisterCoreTools(reg *Registry, env ExecutionEnvironment, commandTimeout time.Duration) {
	registerWriteFile(reg, env)
	registerReadFile(reg, env)
	registerAppendFile(reg, env)
	registerDeleteFile(reg, env)
	registerSearchInFile(reg, env)
	registerListFiles(reg, env)
	registerCreateDirectory(reg, env)
	registerDeleteDirectory(reg, env)
	registerRunCommand(reg, env, commandTimeout)
	registerRunInNewTerminal(reg, env)
	registerAskUserForFeedback(reg, env)
}

func registerWriteFile(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "write_file",
		Description: "Write content to a file. Creates parent directories if needed. Overwrites existing files.",
		Parameters: map[string]ParamSpec{
			"path":    {Type: "string", Description: "File path (including filename) where content should be written.", Required: true},
			"content": {Type: "string", Description: "The text content to write into the file.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			path, _ := GetStringArg(input, "path")
			content, hasContent := GetStringArg(input, "content")
			if path == "" || !hasContent {
				return "Error: 'path' and 'content' are required."
			}
			if err := env.WriteFile(path, content); err != nil {
				return fmt.Sprintf("Error writing file '%s': %v", path, err)
			}
			return fmt.Sprintf("File '%s' written successfully.", path)
		},
	})
}

func registerReadFile(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "read_file",
		Description: "Read the entire content from a specified file.",
		Parameters: map[string]ParamSpec{
			"path": {Type: "string", Description: "The path to the file to be read.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			path, _ := GetStringArg(input, "path")
			if path == "" {
				return "Error: 'path' is required."
			}
			content, err := env.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Sprintf("Error: File not found at '%s'.", path)
				}
				return fmt.Sprintf("Error reading file '%s': %v", path, err)
			}
			return content
		},
	})
}

func registerAppendFile(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "append_file",
		Description: "Append content to the end of an existing file. Creates the file and directories if they don't exist.",
		Parameters: map[string]ParamSpec{
			"path":    {Type: "string", Description: "File path (including filename) to append to.", Required: true},
			"content": {Type: "string", Description: "The text content to append.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			path, _ := GetStringArg(input, "path")
			content, hasContent := GetStringArg(input, "content")
			if path == "" || !hasContent {
				return "Error: 'path' and 'content' are required."
			}
			if err := env.AppendFile(path, content); err != nil {
				return fmt.Sprintf("Error appending to file '%s': %v", path, err)
			}
			return fmt.Sprintf("Content appended to '%s'.", path)
		},
	})
}

func registerDeleteFile(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "delete_file",
		Description: "Delete a single file.",
		Parameters: map[string]ParamSpec{
			"path": {Type: "string", Description: "The path to the file to be deleted.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			path, _ := GetStringArg(input, "path")
			if path == "" {
				return "Error: 'path' is required."
			}
			if env.IsDirectory(path) {
				return fmt.Sprintf("Error: '%s' is a directory. Use delete_directory tool.", path)
			}
			if err := env.DeleteFile(path); err != nil {
				if os.IsNotExist(err) {
					return fmt.Sprintf("Error: File not found at '%s', cannot delete.", path)
				}
				return fmt.Sprintf("Error deleting file '%s': %v", path, err)
			}
			return fmt.Sprintf("File '%s' deleted successfully.", path)
		},
	})
}

// searchMatch is one matching line in search_in_file output.
type searchMatch struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

func registerSearchInFile(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "search_in_file",
		Description: "Search for a specific string within a file and return all lines containing the string, along with their line numbers.",
		Parameters: map[string]ParamSpec{
			"path":  {Type: "string", Description: "The path to the file to search within.", Required: true},
			"query": {Type: "string", Description: "The string pattern to search for.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			path, _ := GetStringArg(input, "path")
			query, _ := GetStringArg(input, "query")
			if path == "" || query == "" {
				return "Error: 'path' and 'query' are required."
			}
			content, err := env.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Sprintf("Error: File not found at '%s'.", path)
				}
				return fmt.Sprintf("Error searching in file '%s': %v", path, err)
			}

			var matches []searchMatch
			for i, line := range strings.Split(content, "\n") {
				if strings.Contains(line, query) {
					matches = append(matches, searchMatch{
						LineNumber: i + 1,
						Content:    strings.TrimSpace(line),
					})
				}
			}
			if len(matches) == 0 {
				return fmt.Sprintf("No matches found for '%s' in file '%s'.", query, path)
			}
			if len(matches) > searchMatchLimit {
				raw, _ := json.Marshal(matches[:searchMatchLimit])
				return fmt.Sprintf("%s\n... (truncated, %d more matches found)", raw, len(matches)-searchMatchLimit)
			}
			raw, _ := json.Marshal(matches)
			return string(raw)
		},
	})
}

func registerListFiles(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "list_files",
		Description: "List all files and directories within a specified directory, showing their type.",
		Parameters: map[string]ParamSpec{
			"directory": {Type: "string", Description: "The path to the directory whose contents should be listed. Defaults to current directory '.' if omitted."},
		},
		Run: func(input map[string]interface{}) string {
			directory, ok := GetStringArg(input, "directory")
			if !ok || directory == "" {
				directory = "."
			}
			entries, err := env.ListDirectory(directory)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Sprintf("Error: Directory not found at '%s'.", directory)
				}
				return fmt.Sprintf("Error listing files in '%s': %v", directory, err)
			}
			raw, _ := json.Marshal(entries)
			return string(raw)
		},
	})
}

func registerCreateDirectory(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "create_directory",
		Description: "Create a new directory. Creates parent directories as needed if they don't exist.",
		Parameters: map[string]ParamSpec{
			"directory": {Type: "string", Description: "The full path of the directory to create.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			directory, _ := GetStringArg(input, "directory")
			if directory == "" {
				return "Error: 'directory' is required."
			}
			if err := env.CreateDirectory(directory); err != nil {
				return fmt.Sprintf("Error creating directory '%s': %v", directory, err)
			}
			return fmt.Sprintf("Directory '%s' created or already exists.", directory)
		},
	})
}

// refusesDeletion reports whether directory is one of the paths the agent
// must never delete: the root path, current/parent directory aliases, or the
// user's home directory.
func refusesDeletion(env ExecutionEnvironment, directory string) bool {
	trimmed := strings.TrimSpace(directory)
	if trimmed == "." || trimmed == ".." || trimmed == "/" {
		return true
	}
	abs := trimmed
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(env.WorkingDirectory(), abs)
	}
	abs = filepath.Clean(abs)
	if home, err := os.UserHomeDir(); err == nil && abs == filepath.Clean(home) {
		return true
	}
	return false
}

func registerDeleteDirectory(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "delete_directory",
		Description: "Delete a directory and all its contents recursively. Use with caution! Consider using 'ask_user_for_feedback' for confirmation first.",
		Parameters: map[string]ParamSpec{
			"directory": {Type: "string", Description: "The path to the directory to be deleted.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			directory, _ := GetStringArg(input, "directory")
			if directory == "" {
				return "Error: 'directory' is required."
			}
			if refusesDeletion(env, directory) {
				return fmt.Sprintf("Error: Safety preventions disallow deleting '%s'.", directory)
			}
			if !env.IsDirectory(directory) {
				return fmt.Sprintf("Error: '%s' is not a valid directory.", directory)
			}
			if err := env.DeleteDirectory(directory); err != nil {
				return fmt.Sprintf("Error deleting directory '%s': %v", directory, err)
			}
			return fmt.Sprintf("Directory '%s' and its contents deleted successfully.", directory)
		},
	})
}

func registerRunCommand(reg *Registry, env ExecutionEnvironment, timeout time.Duration) {
	reg.Register(ToolSpec{
		Name: "run_command",
		Description: "Execute a shell command in the agent's current working directory and capture its exit code, stdout, and stderr. " +
			"Use for commands that complete and exit (compile, install, test, format, run scripts, get current path 'pwd', etc.).",
		Parameters: map[string]ParamSpec{
			"command": {Type: "string", Description: "The shell command to execute (e.g., 'python script.py', 'npm install', 'go test ./...', 'pwd').", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			command, _ := GetStringArg(input, "command")
			if command == "" {
				return "Error: 'command' is required."
			}
			result, err := env.ExecCommand(context.Background(), command, timeout)
			if err != nil {
				return fmt.Sprintf("Error running command '%s': %v", command, err)
			}
			return formatExecResult(result)
		},
	})
}

// formatExecResult renders an ExecResult in the exit-code/stdout/stderr
// layout the model is instructed to analyze.
func formatExecResult(result *ExecResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Exit Code: %d\n", result.ExitCode)
	if result.Stdout != "" {
		fmt.Fprintf(&sb, "STDOUT:\n%s\n", strings.TrimSpace(result.Stdout))
	} else {
		sb.WriteString("STDOUT: (empty)\n")
	}
	if result.Stderr != "" {
		fmt.Fprintf(&sb, "STDERR:\n%s\n", strings.TrimSpace(result.Stderr))
	} else {
		sb.WriteString("STDERR: (empty)\n")
	}
	if result.TimedOut {
		sb.WriteString("\n[INFO] Command timed out before completing. Partial output is shown above.")
	} else if result.ExitCode != 0 {
		fmt.Fprintf(&sb, "\n[INFO] Command execution may have failed (non-zero exit code: %d). Review STDERR.", result.ExitCode)
	}

	output := strings.TrimSpace(sb.String())
	if len(output) > commandOutputLimit {
		output = output[:commandOutputLimit] + "\n... (output truncated)"
	}
	return output
}

func registerRunInNewTerminal(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name: "run_in_new_terminal",
		Description: "Execute a shell command in a NEW, separate Terminal window (macOS only). The new terminal starts in the user's HOME directory. " +
			"Use for long-running foreground processes (like dev servers) or when the user should see live output. " +
			"IMPORTANT: The command MUST include 'cd /path/to/dir && ...' if it needs to run in a specific directory.",
		Parameters: map[string]ParamSpec{
			"command": {Type: "string", Description: "The shell command to execute in the new terminal. MUST include 'cd' to the correct directory if not running from HOME.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			command, _ := GetStringArg(input, "command")
			if command == "" {
				return "Error: 'command' is required."
			}
			if env.Platform() != "darwin" {
				return "Error: run_in_new_terminal only works on macOS. Use run_command instead."
			}
			if err := env.SpawnTerminal(command); err != nil {
				return fmt.Sprintf("Error running command '%s' in new terminal: %v", command, err)
			}
			return fmt.Sprintf("Command '%s' launched in a new Terminal window. Note: It runs independently and starts in the user's home directory unless the command includes 'cd'.", command)
		},
	})
}

func registerAskUserForFeedback(reg *Registry, env ExecutionEnvironment) {
	reg.Register(ToolSpec{
		Name:        "ask_user_for_feedback",
		Description: "Ask the human user a question to get clarification, confirmation, or additional input needed to proceed. Use sparingly.",
		Parameters: map[string]ParamSpec{
			"question": {Type: "string", Description: "The question to ask the user.", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			question, _ := GetStringArg(input, "question")
			if question == "" {
				return "Error: 'question' parameter is required for ask_user_for_feedback."
			}
			response, err := env.Prompt(question)
			if err != nil {
				return "Error: Could not get user input (EOF reached)."
			}
			return fmt.Sprintf("User response to '%s': %s", question, response)
		},
	})
}
