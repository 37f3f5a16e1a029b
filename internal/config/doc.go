// Package config loads featureflow settings from TOML.
//
// Load searches ~/.config/featureflow/config.toml and ./featureflow.toml when
// no path is given, applies defaults for anything unset, expands ~ in paths,
// and rejects unknown keys. FEATUREFLOW_STATE_DIR and
// FEATUREFLOW_GENERATOR_COMMAND fill in their settings when the file leaves
// them empty.
package config
