package gotap

// Authenticator supplies the credentials used during the SASL exchange.
// The client never interprets the credential pair itself; it is handed
// to the wire-level auth op as an opaque identity and secret.
type Authenticator interface {
	GetCredentials(hostPort string) (string, string, error)
}

type PasswordAuthenticator struct {
	Username string
	Password string
}

func (a *PasswordAuthenticator) GetCredentials(hostPort string) (string, string, error) {
	return a.Username, a.Password, nil
}
