// Package config provides configuration loading for the license service.
//
// Configuration is resolved from three layers, highest precedence first:
//
//  1. Environment variables with the LICENSED prefix
//     (e.g. LICENSED_SERVER_PORT, LICENSED_LICENSE_SECRET_KEY)
//  2. An optional config.yaml / configs/config.yaml file
//  3. Built-in defaults
//
// The License section carries the signing secret and the process-wide
// defaults (trial duration, latest/minimum client version, download URL)
// that individual licenses may override per record.
package config
