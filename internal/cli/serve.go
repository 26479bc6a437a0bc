package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/voxelroom/internal/config"
	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/server"
	"github.com/roach88/voxelroom/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config ConfigFlags
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the room coordinator server",
		Long: `Run the voxelroom server.

Configuration is read from compiled-in defaults, the optional --config
YAML file and VOXELROOM_* environment variables, in that order. --listen
overrides the configured address.

Example:
  voxelroom serve --config ./voxelroom.yaml
  VOXELROOM_STORE_DRIVER=sqlite VOXELROOM_STORE_DSN=./rooms.db voxelroom serve --listen :9000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	opts.Config.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := cfg.Log.Logger(cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening store", "driver", cfg.Store.Driver)
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	rooms := room.NewRegistry(st,
		room.WithIdleTimeout(cfg.Room.IdleTimeout),
		room.WithRegistryLogger(logger),
		room.WithRoomOptions(
			room.WithLimits(cfg.Limits()),
			room.WithLogger(logger),
		),
	)
	srv := server.New(rooms, st,
		server.WithLogger(logger),
		server.WithTransport(cfg.Server),
	)

	if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
