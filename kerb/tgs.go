package kerb

import (
	"bytes"
	"fmt"

	"github.com/kardianos/ticketauth/authlog"
)

// TGSResult is what the client holds after the TGS exchange.
type TGSResult struct {
	// Wrapper pairs the CST with a fresh authenticator for the SS.
	Wrapper TicketAuthenticatorWrapper
	// SessionKey is the SS session key.
	SessionKey []byte
}

// HandleTGSRequest validates a TGT and its authenticator and issues a CST
// under ssPrivateKey carrying ssSessionKey. The CST never outlives the TGT.
//
// tgsSessionKey may be empty, in which case the key inside the TGT is used.
func (e *Engine) HandleTGSRequest(tgsSessionKey, tgsPrivateKey, ssSessionKey, ssPrivateKey []byte, w TicketAuthenticatorWrapper) (*TicketSessionKeyWrapper, error) {
	const op = "handle TGS request"
	tgt, auth, err := e.verify(op, tgsSessionKey, tgsPrivateKey, w, UsageTGSAuthenticator)
	if err != nil {
		return nil, err
	}
	defer Wipe(tgt.SessionKey)

	period := e.period(e.now())
	if period.End.After(tgt.Validity.End) {
		period.End = tgt.Validity.End
	}
	if period.End.Before(period.Start) {
		return nil, reject(op, fmt.Sprintf("TGT expired at %s", tgt.Validity.End), nil)
	}

	resp, err := e.issue(op, Ticket{
		ClientID:   auth.ClientID,
		Realm:      e.config.Realm,
		ClientAddr: tgt.ClientAddr,
		Validity:   period,
		SessionKey: ssSessionKey,
	}, ssPrivateKey, tgt.SessionKey, UsageTGSSessionKey)
	if err != nil {
		return nil, err
	}
	e.config.Logger.Debug(authlog.AreaTGS, "issued CST", "client", auth.ClientID, "validity", period.String())
	return resp, nil
}

// HandleTGSResponse recovers the SS session key with the TGS session key and
// builds the wrapper to present to the SS.
func (e *Engine) HandleTGSResponse(clientID string, tgsSessionKey []byte, resp *TicketSessionKeyWrapper) (*TGSResult, error) {
	const op = "handle TGS response"
	key, auth, err := e.accept(clientID, tgsSessionKey, resp, UsageTGSSessionKey, UsageSSAuthenticator)
	if err != nil {
		return nil, withOp(op, err)
	}
	return &TGSResult{
		Wrapper:    TicketAuthenticatorWrapper{Ticket: bytes.Clone(resp.Ticket), Authenticator: auth},
		SessionKey: key,
	}, nil
}
