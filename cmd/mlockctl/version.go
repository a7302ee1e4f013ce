package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() {
	fmt.Printf("mlockctl %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  commit: %s\n", commit)
	fmt.Printf("  built: %s\n", date)
	fmt.Printf("  securemem: %s\n", libraryVersion())
}

// libraryVersion reports the version of the pool library this binary was
// built against. Within the repo the replace directive makes it a local
// path, so "devel" stands in.
func libraryVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == "github.com/joshuapare/securemem" {
			if dep.Replace != nil {
				return "devel (" + dep.Replace.Path + ")"
			}
			return dep.Version
		}
	}
	return "devel"
}
