// Package config defines the configuration for a Holochain instance.
//
// Regardless of how the runtime is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, the runtime relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key  // a plain text file containing the raw private key (cf. holochain keygen).
//  dna.json  // the packaged application definition (overridable with --dna).
//  badger_db // the Badger databases for persistent content and index storage.
package config
