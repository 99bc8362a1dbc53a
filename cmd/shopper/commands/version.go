package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/shopper/display"
	"github.com/teranos/shopper/version"
)

// VersionCmd prints build information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(info)
		}
		fmt.Println(info.String())
		fmt.Printf("  go %s %s\n", info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	VersionCmd.Flags().Bool("json", false, "Output as JSON")
}
