// Package config loads the chunkbench YAML configuration.
//
// Sizes accept human-readable values ("25KiB", "64m", 4096) and durations
// accept Go duration strings ("168h", "30s"). Load fills every field that is
// not set with its default and validates the result. Watch reloads the file
// whenever it changes on disk.
package config
