// Package infra contains the adapters around the core packages: grid and
// series files, the calibration store, metrics sinks, MQTT publishing and
// logging. These packages depend on the core packages, never the reverse.
package infra
