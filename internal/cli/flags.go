package cli

import (
	"os"

	"github.com/spf13/pflag"
)

// DefaultAddr is the admin endpoint used when --addr and VOXELROOM_ADDR
// are unset.
const DefaultAddr = "http://localhost:8080"

// ConfigFlags selects the configuration file shared by commands that open
// the store directly.
type ConfigFlags struct {
	Path string
}

// AddFlags registers --config on flagSet.
func (c *ConfigFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&c.Path, "config", "c", "", "path to YAML config file")
}

// ServerFlags locates a running server's admin endpoints.
type ServerFlags struct {
	Addr string
}

// AddFlags registers --addr on flagSet, defaulting from VOXELROOM_ADDR.
func (s *ServerFlags) AddFlags(flagSet *pflag.FlagSet) {
	def := os.Getenv("VOXELROOM_ADDR")
	if def == "" {
		def = DefaultAddr
	}
	flagSet.StringVar(&s.Addr, "addr", def, "base URL of a running voxelroom server")
}
