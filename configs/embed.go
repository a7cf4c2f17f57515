// Package configs provides the embedded configuration template for
// docsift. The template is embedded at build time so `docsift config
// init` works in every distribution without extra files on disk.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `docsift config init`. Every key can also be set through APP_*
// environment variables; see internal/config.
//
//go:embed config.example.yaml
var ConfigTemplate string
