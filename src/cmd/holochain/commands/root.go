package commands

import (
	"github.com/spf13/cobra"

	"github.com/dynaput247/holochain-sub000/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for the holochain runtime
var RootCmd = &cobra.Command{
	Use:              "holochain",
	Short:            "holochain application runtime",
	TraverseChildren: true,
}
