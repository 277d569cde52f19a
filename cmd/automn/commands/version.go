package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AutomNexus/Automn-sub001/internal/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show Automn version information",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if jsonOutput {
			out, _ := json.MarshalIndent(map[string]string{
				"version":  version.Version,
				"platform": runtime.GOOS + "/" + runtime.GOARCH,
				"go":       runtime.Version(),
			}, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Printf("automn %s\n", version.Version)
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("Go: %s\n", runtime.Version())
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
