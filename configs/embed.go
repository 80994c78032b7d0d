// Package configs provides the embedded configuration template for fuzzysearch.
//
// The template is written by `fuzzysearch config init`, either as the project
// file .fuzzysearch.yaml or as the user file
// ~/.config/fuzzysearch/config.yaml (see internal/config Load for precedence).
package configs

import _ "embed"

// ConfigTemplate is the commented configuration template.
//
//go:embed config.example.yaml
var ConfigTemplate string
