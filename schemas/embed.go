// Package schemas embeds the JSON Schema documents for persisted files.
package schemas

import _ "embed"

// Session is the schema for persisted session documents.
//
//go:embed session.schema.json
var Session string

// Config is the schema for the optional JSON configuration file.
//
//go:embed config.schema.json
var Config string
