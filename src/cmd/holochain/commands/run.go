package commands

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dynaput247/holochain-sub000/src/agent"
	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/crypto/keys"
	"github.com/dynaput247/holochain-sub000/src/eav"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/network"
	"github.com/dynaput247/holochain-sub000/src/nucleus/ribosome"
	"github.com/dynaput247/holochain-sub000/src/workflows"
)

//NewRunCmd returns the command that starts a Holochain instance
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run instance",
		PreRunE: loadConfig,
		RunE:    runInstance,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runInstance(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	key := _config.Key
	if key == nil {
		var err error
		key, err = keys.NewSimpleKeyfile(_config.Keyfile()).ReadKey()
		if err != nil {
			return fmt.Errorf("Reading keyfile %s: %s", _config.Keyfile(), err)
		}
	}

	nodeAgent := agent.FromKey(key)

	dnaBytes, err := ioutil.ReadFile(_config.DnaPath())
	if err != nil {
		return fmt.Errorf("Reading DNA file %s: %s", _config.DnaPath(), err)
	}

	dna := &core.Dna{}
	if err := json.Unmarshal(dnaBytes, dna); err != nil {
		return fmt.Errorf("Parsing DNA file %s: %s", _config.DnaPath(), err)
	}

	var content cas.ContentAddressableStorage
	var meta eav.EntityAttributeValueStorage

	if _config.Store {
		badgerCas, err := cas.NewBadgerStorage(_config.DatabaseDir + "/cas")
		if err != nil {
			return fmt.Errorf("Opening content database: %s", err)
		}
		defer badgerCas.Close()

		badgerEav, err := eav.NewBadgerEavStorage(_config.DatabaseDir + "/eav")
		if err != nil {
			return fmt.Errorf("Opening index database: %s", err)
		}
		defer badgerEav.Close()

		content = badgerCas
		meta = badgerEav
	} else {
		content = cas.NewInmemStorage()
		meta = eav.NewInmemEavStorage()
	}

	// A persistent store may hold the snapshots of a previous run; resume
	// from them rather than re-running genesis over an existing chain.
	var inst *instance.Instance
	resumed := false
	if _config.Store {
		if loaded, err := instance.LoadInstance(nodeAgent, content, meta, logger); err == nil {
			inst = loaded
			resumed = true
		} else {
			logger.WithField("error", err.Error()).Debug("No resumable state, starting fresh")
		}
	}
	if inst == nil {
		inst = instance.NewInstance(nodeAgent, content, meta, logger)
	}
	defer inst.Shutdown()

	rib := ribosome.NewRibosome(workflows.NewHostAdapter(inst), logger)
	for name, zome := range dna.Zomes {
		if err := rib.LoadZome(name, zome.Code, _config.PoolSize); err != nil {
			return fmt.Errorf("Loading zome %s: %s", name, err)
		}
	}
	inst.SetRibosome(rib)
	inst.SetValidationRunner(rib)

	if resumed {
		if err := workflows.Resume(inst, dna); err != nil {
			return fmt.Errorf("Resuming instance: %s", err)
		}
	} else {
		if err := workflows.Genesis(inst, dna); err != nil {
			return fmt.Errorf("Genesis: %s", err)
		}
	}

	if _config.Store {
		defer func() {
			if err := inst.Persist(); err != nil {
				logger.WithField("error", err.Error()).Error("Persisting instance state")
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"agent": nodeAgent.Identity,
		"dna":   dna.Name,
	}).Info("Instance initialized")

	if _config.RelayAddr != "" {
		conn, err := network.DialRelay(
			_config.RelayAddr,
			dna.ToEntry().Address(),
			nodeAgent.Identity,
			nodeAgent,
			workflows.InstanceCallbacks(inst, receiveHandler(inst, dna)),
			logger,
		)
		if err != nil {
			return fmt.Errorf("Connecting to relay %s: %s", _config.RelayAddr, err)
		}
		defer conn.Close()

		if err := workflows.JoinNetwork(inst, conn); err != nil {
			return err
		}
	}

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	return nil
}

// receiveHandler routes node-to-node messages into the app's receive
// callback. Zomes that do not expose one swallow the message.
func receiveHandler(inst *instance.Instance, dna *core.Dna) workflows.DirectMessageHandler {
	return func(fromAgentID, payload string) string {
		args, _ := json.Marshal(map[string]string{
			"from":    fromAgentID,
			"payload": payload,
		})
		for name, zome := range dna.Zomes {
			for _, fn := range zome.Functions {
				if fn == "receive" {
					result, err := workflows.CallZomeFunction(inst, name, "receive", string(args))
					if err != nil {
						return ""
					}
					return result
				}
			}
		}
		return ""
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Copy log output to file")

	// Network
	cmd.Flags().StringP("relay", "r", _config.RelayAddr, "Websocket URL of the sim2h relay (empty for offline)")

	// Application
	cmd.Flags().String("dna", _config.DnaFile, "Packaged DNA file")
	cmd.Flags().Int("pool-size", _config.PoolSize, "WASM instances pooled per zome")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":   _config.DataDir,
		"LogLevel":  _config.LogLevel,
		"RelayAddr": _config.RelayAddr,
		"DnaFile":   _config.DnaPath(),
		"PoolSize":  _config.PoolSize,
		"Store":     _config.Store,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/holochain.toml (.json, .yaml also work)
	viper.SetConfigName("holochain")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
