package tapx

import (
	"strings"
)

type OpsCore struct {
}

func (o OpsCore) decodeError(resp *Packet) error {
	return protocolError{"unexpected status: " + resp.Status.String()}
}

type SASLListMechsResponse struct {
	AvailableMechs []AuthMechanism
}

func (o OpsCore) SASLListMechs(d Dispatcher, cb func(*SASLListMechsResponse, error)) (PendingOp, error) {
	return d.Dispatch(&Packet{
		Magic:  MagicReq,
		OpCode: OpCodeSASLListMechs,
	}, func(resp *Packet, err error) bool {
		if err != nil {
			cb(nil, err)
			return false
		}

		if resp.Status != StatusSuccess {
			cb(nil, o.decodeError(resp))
			return false
		}

		// some servers carry the mechanism list in the extras region
		// rather than the body.
		mechsBuf := resp.Value
		if len(mechsBuf) == 0 {
			mechsBuf = resp.Extras
		}

		mechsList := string(mechsBuf)
		mechsArr := strings.Split(mechsList, " ")

		mechs := make([]AuthMechanism, len(mechsArr))
		for mechIdx, mech := range mechsArr {
			mechs[mechIdx] = AuthMechanism(mech)
		}

		cb(&SASLListMechsResponse{
			AvailableMechs: mechs,
		}, nil)
		return false
	})
}

type SASLAuthRequest struct {
	Mechanism AuthMechanism
	Payload   []byte
}

type SASLAuthResponse struct {
}

// SASLAuth performs a single-step credential exchange.  The server
// signals success with an empty body; a non-empty body carries a UTF-8
// error message and fails the handshake.
func (o OpsCore) SASLAuth(d Dispatcher, req *SASLAuthRequest, cb func(*SASLAuthResponse, error)) (PendingOp, error) {
	return d.Dispatch(&Packet{
		Magic:  MagicReq,
		OpCode: OpCodeSASLAuth,
		Key:    []byte(req.Mechanism),
		Value:  req.Payload,
	}, func(resp *Packet, err error) bool {
		if err != nil {
			cb(nil, err)
			return false
		}

		if resp.Status == StatusAuthError {
			cb(nil, ErrAuthError)
			return false
		}

		if resp.Status != StatusSuccess {
			cb(nil, o.decodeError(resp))
			return false
		}

		if len(resp.Value) > 0 {
			cb(nil, serverAuthError{string(resp.Value)})
			return false
		}

		cb(&SASLAuthResponse{}, nil)
		return false
	})
}
