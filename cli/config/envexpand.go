// Package config loads msgfmt.yaml, the optional defaults file for msgfmt
// commands.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, and ${VAR:?message}.
//   - ${VAR} expands to the env var value, or empty string if unset
//   - ${VAR:-default} expands to the env var value, or "default" if unset/empty
//   - ${VAR:?message} expands to the env var value, or fails if unset/empty
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// MissingEnvError lists required variables that were unset or empty.
type MissingEnvError struct {
	Vars     []string
	Messages []string
}

func (e *MissingEnvError) Error() string {
	parts := make([]string, len(e.Vars))
	for i, v := range e.Vars {
		parts[i] = v
		if e.Messages[i] != "" {
			parts[i] += " (" + e.Messages[i] + ")"
		}
	}
	return "required environment variables not set: " + strings.Join(parts, ", ")
}

// ExpandEnv replaces ${VAR}, ${VAR:-default}, and ${VAR:?message} patterns
// in the input with their environment variable values.
//
// Unset variables without a default expand to empty string. Unset required
// variables are all reported in a single *MissingEnvError.
func ExpandEnv(input string) (string, error) {
	var missing MissingEnvError
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 4 {
			return match
		}

		name, op, arg := groups[1], groups[2], groups[3]
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}

		switch op {
		case "-":
			return arg
		case "?":
			missing.Vars = append(missing.Vars, name)
			missing.Messages = append(missing.Messages, arg)
		}
		return ""
	})

	if len(missing.Vars) > 0 {
		return "", fmt.Errorf("expand config: %w", &missing)
	}
	return out, nil
}
