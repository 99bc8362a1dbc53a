// Package display renders command results for humans or for machines.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/shopper/errors"
)

// ShouldOutputJSON reports whether a command should print JSON instead of tables.
// A local --json flag wins; otherwise the global --json-logs flag decides.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		on, _ := cmd.Flags().GetBool("json")
		return on
	}
	on, _ := cmd.Root().PersistentFlags().GetBool("json-logs")
	return on
}

// OutputJSON prints v as indented JSON on stdout
func OutputJSON(v interface{}) error {
	return WriteJSON(os.Stdout, v)
}

// WriteJSON writes v as indented JSON followed by a newline
func WriteJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
