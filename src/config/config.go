package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/dynaput247/holochain-sub000/src/common"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the agent's
	// private key.
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger databases (CAS and EAV).
	DefaultBadgerFile = "badger_db"

	// DefaultDnaFile is the default name of the packaged application
	// definition.
	DefaultDnaFile = "dna.json"
)

// Default configuration values.
const (
	DefaultLogLevel   = "debug"
	DefaultRelayAddr  = "ws://127.0.0.1:9000"
	DefaultSim2hAddr  = "127.0.0.1:9000"
	DefaultStore      = false
	DefaultRedundancy = 0
	DefaultPoolSize   = 2
)

// Config contains all the configuration properties of a runtime node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, copies log output to a file via a logrus hook.
	LogFile string `mapstructure:"log-file"`

	// RelayAddr is the websocket URL of the sim2h relay this instance
	// connects to. Empty means run offline.
	RelayAddr string `mapstructure:"relay"`

	// Sim2hAddr is the address:port the relay binds to when this process
	// runs the relay itself.
	Sim2hAddr string `mapstructure:"sim2h-listen"`

	// Redundancy is the sharding redundant count for the relay: 0 means
	// full sync, anything else selects naive sharding.
	Redundancy int `mapstructure:"redundancy"`

	// Store activates persistent Badger storage instead of in-memory.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// DnaFile is the path of the packaged DNA to run.
	DnaFile string `mapstructure:"dna"`

	// PoolSize is the number of WASM instances pooled per zome.
	PoolSize int `mapstructure:"pool-size"`

	// Key is the private key of the agent.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		RelayAddr:   DefaultRelayAddr,
		Sim2hAddr:   DefaultSim2hAddr,
		Redundancy:  DefaultRedundancy,
		Store:       DefaultStore,
		DatabaseDir: DefaultDatabaseDir(),
		PoolSize:    DefaultPoolSize,
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level data directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, the user has explicitly set it
// to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// DnaPath returns the full path of the DNA file, defaulting into the data
// directory when no explicit path was configured.
func (c *Config) DnaPath() string {
	if c.DnaFile != "" {
		return c.DnaFile
	}
	return filepath.Join(c.DataDir, DefaultDnaFile)
}

// Logger returns a formatted logrus Entry with prefix set to "holochain".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "holochain")
}

// DefaultDatabaseDir returns the default path for the badger database
// files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Holochain")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Holochain")
		} else {
			return filepath.Join(home, ".holochain")
		}
	}
	// As we cannot guess a stable location, return empty and handle later.
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
