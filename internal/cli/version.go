package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sr-857/astraguard-client/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("astractl %s\n", version.Version)
			fmt.Printf("  Built:    %s\n", version.BuildTime)
			fmt.Printf("  Go:       %s\n", runtime.Version())
			fmt.Printf("  Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
