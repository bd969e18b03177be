// Package output renders command results for keydesk-cli.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned tables driven by `table` struct tags
//   - json.go, yaml.go: machine-readable output for scripting
//   - spinner.go, progress.go: feedback for long operations on stderr
//
// Struct tag options understood by the table formatter:
//
//	table:"-"                skip the field
//	table:"wide"             only in wide mode
//	table:"header=OWNER"     override the column header
//	table:"ms"               int64 Unix milliseconds rendered as a time
package output
