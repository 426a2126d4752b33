// Package config loads the fhirsub server configuration.
//
// Configuration is a single YAML file named by the --config flag or the
// FHIRSUB_CONFIG environment variable. Values not present in the file keep
// the defaults from Default. ${VAR} and ${VAR:-default} are expanded in
// paths and tokens so secrets can stay out of the file.
package config
