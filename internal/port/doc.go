// Package port checks whether the host ports a compose service publishes
// are free before the service is started.
//
// Compose reports a taken port only after it has created the container and
// the engine failed to bind, which leaves half-started services behind. The
// Scanner asks the OS directly with net.Listen and net.ListenPacket so that
// `up` can refuse early with a list of every conflicting port.
package port
