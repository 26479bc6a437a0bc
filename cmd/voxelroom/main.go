// Command voxelroom runs and administers shared voxel rooms.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/voxelroom/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
