// Package config provides layered configuration for deskglyph.
//
// Values come from three layers, later ones winning:
//
//  1. Default()
//  2. an optional TOML or YAML file, chosen by extension
//  3. GLYPH_* environment variables
//
// Environment variables are named after the section and field, for example
// GLYPH_DESKTOP_ICON_SIZE, GLYPH_SANDBOX_ALLOW_NETWORK or
// GLYPH_HOST_RESPONSE_TIMEOUT. Durations use Go syntax ("250ms", "2s");
// lists are comma-separated.
//
// Example config.toml:
//
//	[desktop]
//	dir = "/home/me/Desktop"
//	icon_size = 48
//
//	[scripts]
//	dirs = ["/home/me/.config/deskglyph/scripts"]
//
//	[sandbox]
//	allow_network = false
//	callback_timeout = "150ms"
package config
