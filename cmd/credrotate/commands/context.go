// Package commands implements the credrotate CLI subcommands.
package commands

import (
	"github.com/systmms/credrotate/internal/logging"
)

// Context carries the state shared by every subcommand, populated by the
// root command's persistent pre-run.
type Context struct {
	Logger     *logging.Logger
	PolicyFile string
}
