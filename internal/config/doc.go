// Package config provides user configuration management for dlttap.
//
// This package manages a YAML-based configuration file holding decoder
// settings, the inputs the relay server reads from, sink settings and
// metadata for known DLT daemons. The configuration follows OS-specific
// conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/dlttap/config.yaml or $HOME/.config/dlttap/config.yaml
//   - macOS: $HOME/.config/dlttap/config.yaml
//   - Windows: %LOCALAPPDATA%\dlttap\config.yaml
//
// Every command also accepts --config to point at another file.
//
// # Example
//
//	version: 1
//	decoder: {profile: default, storage_header: true, resync: true}
//	filter: {min_level: info, app_ids: [NAV]}
//	inputs:
//	  - {name: ecu1, type: tcp, address: 192.168.0.10:3490}
//	  - {name: captures, type: follow, patterns: ["/var/log/dlt/**/*.dlt"]}
//	sinks:
//	  mqtt: {broker: tcp://localhost:1883, topic_prefix: dlt, encoding: msgpack}
//	  nanomsg: {listen: tcp://0.0.0.0:40899}
//	server: {port: 8080, advertise: true}
//	endpoints:
//	  ECU1: {address: 192.168.0.10:3490, nickname: Head unit}
//
// # Security
//
// The MQTT password is never written to the file; it is read from the
// DLTTAP_MQTT_PASSWORD environment variable.
//
// # Thread Safety
//
// The global config uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
