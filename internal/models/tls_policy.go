package models

import (
	"crypto/tls"
	"fmt"

	er "github.com/taskwell/mailroom/internal/errors"
)

// TLSClientConfig builds the TLS client config for one of the inbox's
// endpoints. host is the endpoint being dialed; SNIServerName overrides it
// when set. The minimum version floor applies to implicit TLS and STARTTLS
// alike, and an unrecognized floor is a configuration error, never a
// fallback to a default.
func (i *Inbox) TLSClientConfig(host string) (*tls.Config, error) {
	minVersion, err := tlsMinVersion(i.TLSMinVersion)
	if err != nil {
		return nil, err
	}

	serverName := host
	if i.SNIServerName != "" {
		serverName = i.SNIServerName
	}

	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         minVersion,
		InsecureSkipVerify: !i.TLSRejectUnauthorized,
	}, nil
}

func tlsMinVersion(version string) (uint16, error) {
	switch version {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, er.TLSError(fmt.Errorf("unsupported TLS minimum version %q", version), "invalid TLS policy")
	}
}
