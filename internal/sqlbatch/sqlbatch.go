// Package sqlbatch turns a semicolon-delimited batch of SQL into individual statements.
package sqlbatch

import (
	"fmt"
	"strings"

	"github.com/mfridman/interpolate"
)

// Split splits batch on ';', trims each fragment, and drops empty ones. Statements are returned in
// their original left-to-right order. Semicolons inside string literals are not special-cased.
func Split(batch string) []string {
	var stmts []string
	for _, fragment := range strings.Split(batch, ";") {
		if s := strings.TrimSpace(fragment); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Expand replaces $VAR and ${VAR} references in batch using env, a list of KEY=VALUE pairs such as
// os.Environ(). Unset variables expand to the empty string; ${VAR:-default} and ${VAR?message}
// behave as in a POSIX shell.
func Expand(batch string, env []string) (string, error) {
	expanded, err := interpolate.Interpolate(interpolate.NewSliceEnv(env), batch)
	if err != nil {
		return "", fmt.Errorf("expand variables: %w", err)
	}
	return expanded, nil
}
