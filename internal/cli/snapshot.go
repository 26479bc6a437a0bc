package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/roach88/voxelroom/internal/room"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Server ServerFlags
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot <room>",
		Short: "Show a room's current state",
		Long: `Fetch the current state of a room from a running server.

Example:
  voxelroom snapshot lobby
  voxelroom snapshot lobby --addr http://rooms.internal:8080 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, args[0], cmd)
		},
	}

	opts.Server.AddFlags(cmd.Flags())

	return cmd
}

func runSnapshot(opts *SnapshotOptions, roomID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	client, err := newAdminClient(opts.Server.Addr)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --addr", err)
	}
	formatter.VerboseLog("GET %s/rooms/%s/snapshot", client.base, roomID)

	var snap room.Snapshot
	if err := client.roomCall(cmd.Context(), http.MethodGet, roomID, "snapshot", &snap); err != nil {
		return adminFailure(formatter, "snapshot failed", err)
	}

	state := "live"
	if snap.Frozen {
		state = "frozen"
	}
	text := fmt.Sprintf("room %s: %s, version %d, clock %d, %d cell(s), %d participant(s)",
		snap.Room, state, snap.Version, snap.Clock, len(snap.Voxels), snap.Participants)
	return formatter.Success(snap, text)
}

// adminFailure classifies an admin call error.
func adminFailure(formatter *OutputFormatter, message string, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return formatter.Fail(ExitFailure, ErrCodeRefused, message, err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeUnreachable, message, err)
}
