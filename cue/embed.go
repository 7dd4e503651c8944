// Package cue provides the embedded CUE configuration schema.
package cue

import "embed"

// ConfigFS contains the embedded configuration schema and defaults.
//
//go:embed config/*.cue
var ConfigFS embed.FS

// SchemaPath is the schema file within the embedded filesystem.
const SchemaPath = "config/schema.cue"
