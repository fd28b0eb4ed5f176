package config

// Environment variable names for device credentials. Values are re-read on
// every Credentials() call so a rotated .env or environment takes effect on
// the next operation without a restart.
const (
	EnvSSHUsername    = "UPGRADEMGR_SSH_USERNAME"
	EnvSSHPassword    = "UPGRADEMGR_SSH_PASSWORD"
	EnvEnablePassword = "UPGRADEMGR_ENABLE_PASSWORD"
	EnvNetconfPort    = "UPGRADEMGR_NETCONF_PORT"
)

// Credentials carries the device login material for one operation.
type Credentials struct {
	Username       string
	Password       string
	EnablePassword string
	NetconfPort    int
}

// EnvCredentialSource reads credentials from the environment on every call.
type EnvCredentialSource struct{}

// Credentials returns the current device credentials.
func (EnvCredentialSource) Credentials() Credentials {
	return Credentials{
		Username:       String(EnvSSHUsername, ""),
		Password:       String(EnvSSHPassword, ""),
		EnablePassword: String(EnvEnablePassword, ""),
		NetconfPort:    Int(EnvNetconfPort, 830),
	}
}
