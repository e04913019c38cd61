// Package configs provides the embedded configuration template for
// noterag.
//
// The template is embedded at build time with //go:embed so it ships
// in every distribution, source builds and binary releases alike. It
// is written out by `noterag config init`.
//
// Configuration precedence (see internal/config.Load):
//  1. Built-in defaults (internal/config.NewConfig)
//  2. Config file (~/.config/noterag/config.yaml)
//  3. Environment variables (NOTERAG_*, OLLAMA_URL, CLAWDBOT_*)
//
// To change the template, edit noterag.example.yaml and rebuild.
package configs

import _ "embed"

// ConfigTemplate is the annotated starter config written by
// `noterag config init`.
//
//go:embed noterag.example.yaml
var ConfigTemplate string
