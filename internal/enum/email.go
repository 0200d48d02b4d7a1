package enum

// EmailSecurity is the transport security mode for a mail connection.
type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecurityTLS      EmailSecurity = "ssl"
	EmailSecurityStartTLS EmailSecurity = "starttls"
)

func DecodeEmailSecurity(s string) EmailSecurity {
	switch s {
	case "ssl", "tls":
		return EmailSecurityTLS
	case "starttls":
		return EmailSecurityStartTLS
	default:
		return EmailSecurityNone
	}
}

// ConnectionStatus reflects the last transport attempt for an inbox.
type ConnectionStatus string

const (
	ConnectionActive    ConnectionStatus = "active"
	ConnectionNotActive ConnectionStatus = "not_active"
)
