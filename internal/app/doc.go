// Package app manages the lifecycle of an application package on a
// remotely-connected device: push-and-install with verification,
// runtime permission grants, monitored launch with crash and readiness
// detection from the device log, graceful and forced termination, and
// instrumentation test invocation either directly or through the
// on-device test orchestrator.
//
// Application is the base entity; ServiceApplication and
// TestApplication specialize it for background-service packages and
// instrumentation test packages.
package app
