package main

import (
	"encoding/json"
	"fmt"
)

func (a *app) jsonOut() bool {
	return a.v.GetBool("json")
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// stringArgs widens CLI arguments for the ABI coercion layer.
func stringArgs(args []string) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = arg
	}
	return out
}
