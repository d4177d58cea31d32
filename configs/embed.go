// Package configs embeds the configuration template written by
// `trenton config init`.
package configs

import _ "embed"

// UserConfigTemplate is the commented user configuration. Every active
// value in it equals the built-in default.
//
//go:embed config.example.yaml
var UserConfigTemplate string
