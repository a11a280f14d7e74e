package agentloop

import (
	"context"
	"fmt"
	"strings"
)

// CoreToolSource exposes the built-in filesystem and shell tools over an
// ExecutionEnvironment.
func CoreToolSource(env ExecutionEnvironment, cfg Config) Source {
	return StaticSource{
		SourceName: "core",
		Descriptors: []ToolDescriptor{
			readFileTool(env),
			writeFileTool(env),
			listFilesTool(env),
			executeCommandTool(env, cfg),
			searchFilesTool(env),
		},
	}
}

type readFileInput struct {
	Path   string `json:"path" jsonschema:"required,description=Path to the file to read."`
	Offset int    `json:"offset,omitempty" jsonschema:"description=1-based line number to start reading from."`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read. Default: 2000."`
}

func readFileTool(env ExecutionEnvironment) ToolDescriptor {
	return NewTool("read_file",
		"Read a file from the filesystem. Returns line-numbered content.",
		func(ctx context.Context, input readFileInput) (string, error) {
			if input.Path == "" {
				return "", fmt.Errorf("path is required")
			}
			limit := input.Limit
			if limit == 0 {
				limit = 2000
			}
			return env.ReadFile(input.Path, input.Offset, limit)
		})
}

type writeFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=Path to write to."`
	Content string `json:"content" jsonschema:"required,description=The full file content to write."`
}

func writeFileTool(env ExecutionEnvironment) ToolDescriptor {
	return NewTool("write_file",
		"Write content to a file. Creates the file and parent directories if needed.",
		func(ctx context.Context, input writeFileInput) (string, error) {
			if input.Path == "" {
				return "", fmt.Errorf("path is required")
			}
			if err := env.WriteFile(input.Path, input.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path), nil
		})
}

type listFilesInput struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list. Default: working directory."`
}

func listFilesTool(env ExecutionEnvironment) ToolDescriptor {
	return NewTool("list_files",
		"List the entries of a directory with sizes.",
		func(ctx context.Context, input listFilesInput) (string, error) {
			path := input.Path
			if path == "" {
				path = "."
			}
			entries, err := env.ListDirectory(path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Directory is empty.", nil
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name, e.Size)
				}
			}
			return sb.String(), nil
		})
}

type executeCommandInput struct {
	Command   string `json:"command" jsonschema:"required,description=The shell command to run."`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"description=Override the default command timeout in milliseconds."`
}

func executeCommandTool(env ExecutionEnvironment, cfg Config) ToolDescriptor {
	return NewTool("execute_command",
		"Execute a shell command. Returns stdout, stderr, and exit code.",
		func(ctx context.Context, input executeCommandInput) (string, error) {
			if input.Command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeoutMs := input.TimeoutMs
			if timeoutMs <= 0 {
				timeoutMs = cfg.CommandTimeoutMs
			}
			if timeoutMs > cfg.CommandMaxTimeoutMs {
				timeoutMs = cfg.CommandMaxTimeoutMs
			}

			result, err := env.ExecCommand(ctx, input.Command, timeoutMs, "", nil)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %dms. Partial output is shown above. "+
					"Retry with a longer timeout via the timeout_ms parameter.]", timeoutMs)
			} else if result.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		})
}

type searchFilesInput struct {
	Pattern         string `json:"pattern" jsonschema:"required,description=Regex pattern to search for."`
	Path            string `json:"path,omitempty" jsonschema:"description=Directory or file to search. Default: working directory."`
	GlobFilter      string `json:"glob_filter,omitempty" jsonschema:"description=File pattern filter (e.g. *.go)."`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" jsonschema:"description=Case insensitive search. Default: false."`
	MaxResults      int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results. Default: 100."`
}

func searchFilesTool(env ExecutionEnvironment) ToolDescriptor {
	return NewTool("search_files",
		"Search file contents using regex patterns. Returns matching lines with file paths and line numbers.",
		func(ctx context.Context, input searchFilesInput) (string, error) {
			if input.Pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			maxResults := input.MaxResults
			if maxResults <= 0 {
				maxResults = 100
			}
			out, err := env.Search(ctx, input.Pattern, input.Path, SearchOptions{
				GlobFilter:      input.GlobFilter,
				CaseInsensitive: input.CaseInsensitive,
				MaxResults:      maxResults,
			})
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "No matches found.", nil
			}
			return out, nil
		})
}
