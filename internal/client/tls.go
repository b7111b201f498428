package client

import "crypto/tls"

// tlsConfigFor builds a minimal client TLS configuration verifying the
// server certificate against serverName using the system root CA pool.
// Non-goal per spec §1 ("does not implement TLS configuration"): this is
// the one fixed policy the library offers, not a configurable TLS stack.
func tlsConfigFor(serverName string) tls.Config {
	return tls.Config{ServerName: serverName}
}
