package kerb

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/kardianos/ticketauth/authlog"
)

// KDCResult is what the client holds after the KDC exchange.
type KDCResult struct {
	// Wrapper pairs the TGT with a fresh authenticator for the TGS.
	Wrapper TicketAuthenticatorWrapper
	// SessionKey is the TGS session key.
	SessionKey []byte
}

// InitKDCRequest derives the client's long term key from its password.
func (e *Engine) InitKDCRequest(clientID, password string) ([]byte, error) {
	const op = "init KDC request"
	d, err := e.config.Hasher.HashPassword(clientID, password)
	if err != nil {
		var ke *Error
		if errors.As(err, &ke) {
			return nil, withOp(op, err)
		}
		return nil, cryptoErr(op, err)
	}
	if len(d) != KeySize {
		Wipe(d)
		return nil, cryptoErr(op, fmt.Errorf("password digest is %d bytes, want %d", len(d), KeySize))
	}
	return d, nil
}

// HandleKDCRequest issues a TGT for clientID under tgsPrivateKey and
// delivers tgsSessionKey encrypted under the client's stored digest.
func (e *Engine) HandleKDCRequest(ctx context.Context, clientID, clientAddr string, tgsSessionKey, tgsPrivateKey []byte) (*LoginResponse, error) {
	const op = "handle KDC request"
	if e.config.Registry == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRegistry)
	}
	digest, err := e.config.Registry.LookupPasswordDigest(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, Op: op, reason: fmt.Sprintf("client %q", clientID)}
		}
		return nil, fmt.Errorf("%s: lookup %q: %w", op, clientID, err)
	}
	defer Wipe(digest)

	resp, err := e.issue(op, Ticket{
		ClientID:   clientID,
		Realm:      e.config.Realm,
		ClientAddr: clientAddr,
		Validity:   e.period(e.now()),
		SessionKey: tgsSessionKey,
	}, tgsPrivateKey, digest, UsageKDCSessionKey)
	if err != nil {
		return nil, err
	}
	e.config.Logger.Debug(authlog.AreaKDC, "issued TGT", "client", clientID, "addr", clientAddr)
	return resp, nil
}

// issue encrypts t under privKey and its session key under deliveryKey.
func (e *Engine) issue(op string, t Ticket, privKey, deliveryKey []byte, usage KeyUsage) (*LoginResponse, error) {
	if len(t.SessionKey) != KeySize {
		return nil, cryptoErr(op, fmt.Errorf("session key is %d bytes, want %d", len(t.SessionKey), KeySize))
	}
	ticket, err := MakeTicket(t, privKey)
	if err != nil {
		return nil, withOp(op, err)
	}
	sk, err := sealSessionKey(t.SessionKey, deliveryKey, usage)
	if err != nil {
		return nil, withOp(op, err)
	}
	return &LoginResponse{Ticket: ticket, SessionKey: sk}, nil
}

// HandleKDCResponse recovers the TGS session key with the client's digest
// and builds the wrapper to present to the TGS. A wrong digest yields
// ErrDecrypt.
func (e *Engine) HandleKDCResponse(clientID string, digest []byte, resp *LoginResponse) (*KDCResult, error) {
	const op = "handle KDC response"
	key, auth, err := e.accept(clientID, digest, resp, UsageKDCSessionKey, UsageTGSAuthenticator)
	if err != nil {
		return nil, withOp(op, err)
	}
	return &KDCResult{
		Wrapper:    TicketAuthenticatorWrapper{Ticket: bytes.Clone(resp.Ticket), Authenticator: auth},
		SessionKey: key,
	}, nil
}

// accept opens the session key of resp and makes the authenticator for the
// next hop.
func (e *Engine) accept(clientID string, key []byte, resp *LoginResponse, keyUsage, authUsage KeyUsage) (sessionKey, auth []byte, err error) {
	if resp == nil {
		return nil, nil, cryptoErr("decrypt", fmt.Errorf("nil response"))
	}
	sessionKey, err = openSessionKey(resp.SessionKey, key, keyUsage)
	if err != nil {
		return nil, nil, err
	}
	auth, err = MakeAuthenticator(clientID, e.now(), sessionKey, authUsage)
	if err != nil {
		Wipe(sessionKey)
		return nil, nil, err
	}
	return sessionKey, auth, nil
}
