package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dynaput247/holochain-sub000/src/sim2h"
)

//NewSim2hCmd returns the command that starts a sim2h relay server
func NewSim2hCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim2h",
		Short: "Run sim2h relay server",
		RunE:  runRelay,
	}
	AddSim2hFlags(cmd)
	return cmd
}

//AddSim2hFlags adds flags to the sim2h command
func AddSim2hFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("sim2h-listen", "l", _config.Sim2hAddr, "Listen IP:Port for the relay websocket")
	cmd.Flags().Int("redundancy", _config.Redundancy, "Agents per entry with naive sharding, 0 for full sync")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
}

// runRelay starts the relay and waits for a SIGINT or SIGTERM
func runRelay(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	logger := _config.Logger()

	var policy sim2h.ReplicationPolicy = sim2h.FullSync{}
	if _config.Redundancy > 0 {
		policy = sim2h.NaiveSharding{RedundantCount: _config.Redundancy}
	}

	relay := sim2h.NewRelay(policy, logger)

	go func() {
		if err := relay.Serve(_config.Sim2hAddr); err != nil {
			logger.WithError(err).Error("Relay server stopped")
		}
	}()

	logger.WithField("listen", _config.Sim2hAddr).
		WithField("policy", policy.Name()).
		Info("sim2h relay started")

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	relay.Shutdown()

	return nil
}
