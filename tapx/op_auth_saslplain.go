package tapx

import (
	"golang.org/x/exp/slices"
)

type OpSaslAuthPlain struct {
	Username string
	Password string
}

// SaslAuthPayload builds the single-step PLAIN exchange payload.
func (a OpSaslAuthPlain) SaslAuthPayload() []byte {
	userBuf := []byte(a.Username)
	passBuf := []byte(a.Password)
	authData := make([]byte, 1+len(userBuf)+1+len(passBuf))
	authData[0] = 0
	copy(authData[1:], userBuf)
	authData[1+len(userBuf)] = 0
	copy(authData[1+len(userBuf)+1:], passBuf)
	return authData
}

// Authenticate selects PLAIN from the server-offered mechanism list and
// performs the exchange against the dispatcher.
func (a OpSaslAuthPlain) Authenticate(d Dispatcher, serverMechs []AuthMechanism, cb func(err error)) {
	if !slices.Contains(serverMechs, PlainAuthMechanism) {
		cb(protocolError{"no compatible sasl mechanism was offered"})
		return
	}

	_, err := OpsCore{}.SASLAuth(d, &SASLAuthRequest{
		Mechanism: PlainAuthMechanism,
		Payload:   a.SaslAuthPayload(),
	}, func(resp *SASLAuthResponse, err error) {
		cb(err)
	})
	if err != nil {
		cb(err)
	}
}
