package agentloop

// DefaultToolOutputLimit bounds how much tool output may re-enter the
// conversation when no per-tool limit is configured.
const DefaultToolOutputLimit = 5000

// DefaultToolOutputLimits carries per-tool character caps for the chattier
// tools. read_file gets more headroom because whole-file content is the
// point of the call; the rest inherit the global default.
var DefaultToolOutputLimits = map[string]int{
	"read_file":      20000,
	"run_command":    5000,
	"search_in_file": 5000,
}

// truncationMarker is appended whenever output is cut so the model knows it
// is looking at a prefix.
const truncationMarker = "\n... (tool output truncated)"

// TruncateToolOutput bounds output for the named tool before it is appended
// to the conversation as an observation. Limits come from the supplied map,
// then DefaultToolOutputLimits, then DefaultToolOutputLimit.
func TruncateToolOutput(output string, toolName string, limits map[string]int) string {
	max := 0
	if limits != nil {
		max = limits[toolName]
	}
	if max <= 0 {
		max = DefaultToolOutputLimits[toolName]
	}
	if max <= 0 {
		max = DefaultToolOutputLimit
	}
	return Truncate(output, max)
}

// Truncate cuts output at maxChars and appends the truncation marker. Output
// at or under the limit is returned unchanged.
func Truncate(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	return output[:maxChars] + truncationMarker
}
