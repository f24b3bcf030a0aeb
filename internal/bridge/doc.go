/*
Package bridge defines the remote command boundary between the
application lifecycle core and a remotely-connected device.

The Device interface covers synchronous command execution (with timeout
and a configurable exit-code predicate), monitored streaming command
execution (the Process handle), the package and property queries the
lifecycle code depends on, and the per-device install Lock.

The bridge daemon, device discovery, and the concrete adb plumbing live
outside this module; this package is the contract both real
implementations and the bridgetest fake satisfy.
*/
package bridge
