// Package config loads the msbuild-rar YAML config file.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} with the variable's value and ${VAR:-default}
// with the value, or default when the variable is unset or empty.
//
// Unset variables without a default expand to the empty string; required
// values fail later in Validate or when the component is built.
func ExpandEnv(input string) string {
	matches := envVarPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		if value := os.Getenv(name); value != "" {
			b.WriteString(value)
			continue
		}
		if m[6] >= 0 {
			b.WriteString(input[m[6]:m[7]])
		}
	}
	b.WriteString(input[last:])
	return b.String()
}
