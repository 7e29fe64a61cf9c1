// Package config loads, normalizes, and validates comicdl configuration.
//
// Values come from a TOML file layered over repository defaults, with the
// session cookie also readable from COMICDL_COOKIE. Format, tier, rename
// rule and log settings are rejected here rather than when a chapter first
// uses them.
package config
