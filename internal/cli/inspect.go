package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/voxelroom/internal/artifact"
	"github.com/roach88/voxelroom/internal/canvas"
)

// InspectResult describes a decoded artifact.
type InspectResult struct {
	Room     string             `json:"room"`
	Version  int64              `json:"version"`
	FrozenAt time.Time          `json:"frozenAt"`
	Cells    int                `json:"cells"`
	Digest   string             `json:"digest"`
	Voxels   canvas.PackedState `json:"voxels,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Decode and verify an artifact file",
		Long: `Decode an artifact written by export (or downloaded from /export) and print
its contents. With --verbose every cell is listed.

Example:
  voxelroom inspect lobby.vxr
  voxelroom inspect lobby.vxr --format json -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArtifact, "failed to read artifact", err)
	}
	frozen, err := artifact.Decode(data)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeArtifact, "invalid artifact", err)
	}

	result := InspectResult{
		Room:     frozen.RoomIdentifier,
		Version:  frozen.Version,
		FrozenAt: frozen.FrozenAt,
		Cells:    len(frozen.Voxels),
		Digest:   artifact.Sum(data).String(),
	}
	if opts.Verbose {
		result.Voxels = frozen.Voxels
	}

	var b strings.Builder
	fmt.Fprintf(&b, "room %s\n", result.Room)
	fmt.Fprintf(&b, "  version   %d\n", result.Version)
	fmt.Fprintf(&b, "  frozen at %s\n", result.FrozenAt.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "  cells     %d\n", result.Cells)
	fmt.Fprintf(&b, "  blake3    %s", result.Digest)
	if opts.Verbose {
		for _, v := range frozen.Voxels {
			x, y, z := v.Cell.Coords()
			fmt.Fprintf(&b, "\n  %4d (%2d,%2d,%2d) %s @%d", int(v.Cell), x, y, z, v.Color, v.Timestamp)
		}
	}
	return formatter.Success(result, b.String())
}
