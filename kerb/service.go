package kerb

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/kardianos/ticketauth/authlog"
)

// responseIncrement is added to the client's timestamp in the SS reply so
// the reply is never a copy of the request authenticator.
const responseIncrement = time.Millisecond

// InitSSRequest replaces the authenticator of w with one carrying the
// current time. w may come from HandleTGSResponse or HandleSSResponse.
func (e *Engine) InitSSRequest(ssSessionKey []byte, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	const op = "init SS request"
	prev, err := OpenAuthenticator(w.Authenticator, ssSessionKey, UsageSSAuthenticator)
	if err != nil {
		var respErr error
		prev, respErr = OpenAuthenticator(w.Authenticator, ssSessionKey, UsageSSResponse)
		if respErr != nil {
			return nil, withOp(op, err)
		}
	}
	auth, err := MakeAuthenticator(prev.ClientID, e.now(), ssSessionKey, UsageSSAuthenticator)
	if err != nil {
		return nil, withOp(op, err)
	}
	return &TicketAuthenticatorWrapper{Ticket: bytes.Clone(w.Ticket), Authenticator: auth}, nil
}

// HandleSSRequest validates a CST and its authenticator. It returns the CST
// renewed to [now, now+lifetime] and a reply authenticator whose timestamp
// is the request timestamp plus one millisecond.
//
// The reply authenticator replaces the request authenticator rather than
// echoing it. It is sealed under UsageSSResponse, and HandleSSResponse
// accepts only that form, so a copy of the client's own authenticator does
// not pass as proof that the SS holds the session key.
//
// ssSessionKey may be empty, in which case the key inside the CST is used.
func (e *Engine) HandleSSRequest(ssSessionKey, ssPrivateKey []byte, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	out, cst, err := e.serve("handle SS request", ssSessionKey, ssPrivateKey, w)
	if err != nil {
		return nil, err
	}
	Wipe(cst.SessionKey)
	return out, nil
}

func (e *Engine) serve(op string, ssSessionKey, ssPrivateKey []byte, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, *Ticket, error) {
	cst, auth, err := e.verify(op, ssSessionKey, ssPrivateKey, w, UsageSSAuthenticator)
	if err != nil {
		return nil, nil, err
	}
	renewed := *cst
	renewed.Validity = e.period(e.now())
	ticket, err := MakeTicket(renewed, ssPrivateKey)
	if err != nil {
		Wipe(cst.SessionKey)
		return nil, nil, withOp(op, err)
	}
	reply, err := MakeAuthenticator(auth.ClientID, auth.Timestamp.Add(responseIncrement), cst.SessionKey, UsageSSResponse)
	if err != nil {
		Wipe(cst.SessionKey)
		return nil, nil, withOp(op, err)
	}
	e.config.Logger.Trace(authlog.AreaService, "renewed CST", "client", cst.ClientID, "validity", renewed.Validity.String())
	return &TicketAuthenticatorWrapper{Ticket: ticket, Authenticator: reply}, cst, nil
}

// HandleSSResponse checks that current, the SS reply to last, proves the
// SS holds the session key. The reply must name the same client and carry
// the timestamp of last plus one millisecond.
func (e *Engine) HandleSSResponse(ssSessionKey []byte, last, current TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	const op = "handle SS response"
	sent, err := OpenAuthenticator(last.Authenticator, ssSessionKey, UsageSSAuthenticator)
	if err != nil {
		return nil, reject(op, "sent authenticator does not open", err)
	}
	got, err := OpenAuthenticator(current.Authenticator, ssSessionKey, UsageSSResponse)
	if err != nil {
		return nil, reject(op, "reply authenticator does not open", err)
	}
	if got.ClientID != sent.ClientID {
		return nil, reject(op, fmt.Sprintf("reply client %q, sent %q", got.ClientID, sent.ClientID), nil)
	}
	if want := sent.Timestamp.Add(responseIncrement); !got.Timestamp.Equal(want) {
		return nil, reject(op, fmt.Sprintf("reply time %s, want %s", got.Timestamp.Format(time.RFC3339Nano), want.Format(time.RFC3339Nano)), nil)
	}
	return &TicketAuthenticatorWrapper{
		Ticket:        bytes.Clone(current.Ticket),
		Authenticator: bytes.Clone(current.Authenticator),
	}, nil
}

// InitChangeCredentials builds a credential change request. Both digests
// are encrypted under the SS session key and w gets a fresh authenticator.
func (e *Engine) InitChangeCredentials(clientID string, ssSessionKey, oldDigest, newDigest []byte, w TicketAuthenticatorWrapper) (*LoginCredentials, error) {
	const op = "init change credentials"
	req, err := e.InitSSRequest(ssSessionKey, w)
	if err != nil {
		return nil, withOp(op, err)
	}
	oldCT, err := sealCredential(oldDigest, ssSessionKey)
	if err != nil {
		return nil, withOp(op, err)
	}
	newCT, err := sealCredential(newDigest, ssSessionKey)
	if err != nil {
		return nil, withOp(op, err)
	}
	return &LoginCredentials{
		ClientID:       clientID,
		OldCredentials: oldCT,
		NewCredentials: newCT,
		Wrapper:        *req,
	}, nil
}

// ChangeCredentials validates c.Wrapper like HandleSSRequest, then replaces
// the stored digest of the ticket's client with the new digest if the old
// digest matches. It returns the renewed wrapper.
func (e *Engine) ChangeCredentials(ctx context.Context, ssSessionKey, ssPrivateKey []byte, c *LoginCredentials) (*TicketAuthenticatorWrapper, error) {
	const op = "change credentials"
	if e.config.Registry == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRegistry)
	}
	if c == nil {
		return nil, reject(op, "nil credentials", nil)
	}
	out, cst, err := e.serve(op, ssSessionKey, ssPrivateKey, c.Wrapper)
	if err != nil {
		return nil, err
	}
	defer Wipe(cst.SessionKey)

	if c.ClientID != cst.ClientID {
		return nil, reject(op, fmt.Sprintf("credentials for %q presented with ticket of %q", c.ClientID, cst.ClientID), nil)
	}
	oldDigest, err := openCredential(c.OldCredentials, cst.SessionKey)
	if err != nil {
		return nil, reject(op, "old credentials do not open", err)
	}
	defer Wipe(oldDigest)
	newDigest, err := openCredential(c.NewCredentials, cst.SessionKey)
	if err != nil {
		return nil, reject(op, "new credentials do not open", err)
	}
	defer Wipe(newDigest)
	if len(newDigest) != KeySize {
		return nil, reject(op, fmt.Sprintf("new digest is %d bytes", len(newDigest)), nil)
	}

	stored, err := e.config.Registry.LookupPasswordDigest(ctx, cst.ClientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, Op: op, reason: fmt.Sprintf("client %q", cst.ClientID)}
		}
		return nil, fmt.Errorf("%s: lookup %q: %w", op, cst.ClientID, err)
	}
	match := subtle.ConstantTimeCompare(stored, oldDigest) == 1
	Wipe(stored)
	if !match {
		return nil, &Error{Kind: KindUnauthorized, Op: op, reason: "old digest does not match stored digest"}
	}

	err = e.config.Registry.UpdatePasswordDigest(ctx, cst.ClientID, oldDigest, newDigest)
	switch {
	case errors.Is(err, ErrDigestMismatch):
		return nil, &Error{Kind: KindUnauthorized, Op: op, Err: err, reason: "concurrent credential change"}
	case errors.Is(err, ErrNotFound):
		return nil, &Error{Kind: KindNotFound, Op: op, reason: fmt.Sprintf("client %q", cst.ClientID)}
	case err != nil:
		return nil, fmt.Errorf("%s: update %q: %w", op, cst.ClientID, err)
	}
	e.config.Logger.Info(authlog.AreaRegistry, "credentials changed", "client", cst.ClientID)
	return out, nil
}
