package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/roach88/voxelroom/internal/store"
)

// FreezeOptions holds flags for the freeze command.
type FreezeOptions struct {
	*RootOptions
	Server ServerFlags
}

// NewFreezeCommand creates the freeze command.
func NewFreezeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FreezeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "freeze <room>",
		Short: "Permanently freeze a room",
		Long: `Freeze a room on a running server.

The room's current state is written as a permanent read-only export and
every later write is rejected. Freezing cannot be undone; freezing a room
twice fails.

Example:
  voxelroom freeze lobby`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFreeze(opts, args[0], cmd)
		},
	}

	opts.Server.AddFlags(cmd.Flags())

	return cmd
}

func runFreeze(opts *FreezeOptions, roomID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	client, err := newAdminClient(opts.Server.Addr)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --addr", err)
	}
	formatter.VerboseLog("POST %s/rooms/%s/freeze", client.base, roomID)

	var frozen store.Frozen
	if err := client.roomCall(cmd.Context(), http.MethodPost, roomID, "freeze", &frozen); err != nil {
		return adminFailure(formatter, "freeze failed", err)
	}

	text := fmt.Sprintf("✓ Froze room %s at version %d (%d cell(s))",
		frozen.RoomIdentifier, frozen.Version, len(frozen.Voxels))
	return formatter.Success(frozen, text)
}
