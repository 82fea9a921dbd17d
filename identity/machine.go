package identity

import "github.com/denisbrodbeck/machineid"

// MachineID returns a stable, unique identifier for the current host,
// protected (hashed with appID) so the raw platform identifier is never
// exposed. Used to bind a newly registered identity to the machine it was
// minted on.
func MachineID(appID string) (string, error) {
	return machineid.ProtectedID(appID)
}
