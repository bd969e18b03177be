// Package confloader provides configuration loading mechanism.
//
// This package implements a configuration loader on top of koanf.
//
// Sources, highest priority first:
//
//  1. Environment variables (KEYDESK_ prefix, "__" between levels)
//  2. The YAML configuration file
//  3. Defaults already present in the target struct
//
// Watcher reports changes to the configuration file so long-running
// processes can apply settings such as the log level without a restart.
package confloader
