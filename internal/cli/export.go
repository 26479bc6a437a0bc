package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/voxelroom/internal/artifact"
	"github.com/roach88/voxelroom/internal/config"
	"github.com/roach88/voxelroom/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Config ConfigFlags
	Output string
}

// ExportResult describes a written artifact.
type ExportResult struct {
	Room     string    `json:"room"`
	Version  int64     `json:"version"`
	Cells    int       `json:"cells"`
	FrozenAt time.Time `json:"frozenAt"`
	Digest   string    `json:"digest"`
	Bytes    int       `json:"bytes"`
	Path     string    `json:"path"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <room>",
		Short: "Write a frozen room to an artifact file",
		Long: `Read a frozen room's export from the configured store and write it as a
compressed, content-addressed artifact.

Example:
  voxelroom export lobby --config ./voxelroom.yaml -o lobby.vxr`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	opts.Config.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "artifact path (default <room>.vxr)")

	return cmd
}

func runExport(opts *ExportOptions, roomID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := config.Load(opts.Config.Path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	formatter.VerboseLog("Opening %s store", cfg.Store.Driver)

	st, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer st.Close()

	frozen, err := st.LoadFrozen(cmd.Context(), roomID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return formatter.Fail(ExitFailure, ErrCodeNotFrozen, fmt.Sprintf("room %s is not frozen", roomID), nil)
	case err != nil:
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read frozen export", err)
	}

	data, digest, err := artifact.Encode(frozen)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArtifact, "failed to encode artifact", err)
	}

	path := opts.Output
	if path == "" {
		path = roomID + ".vxr"
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArtifact, "failed to write artifact", err)
	}

	result := ExportResult{
		Room:     frozen.RoomIdentifier,
		Version:  frozen.Version,
		Cells:    len(frozen.Voxels),
		FrozenAt: frozen.FrozenAt,
		Digest:   digest.String(),
		Bytes:    len(data),
		Path:     path,
	}
	text := fmt.Sprintf("✓ Wrote %s (%d bytes)\n  blake3 %s", path, len(data), digest)
	return formatter.Success(result, text)
}
