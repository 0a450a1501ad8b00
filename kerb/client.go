package kerb

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/kardianos/ticketauth/authlog"
)

// Client runs the client side of the protocol against a Transport and
// keeps the keys and tickets of one session. Calls are serialized.
type Client struct {
	engine    *Engine
	transport Transport
	clientID  string
	addr      string
	log       *authlog.Logger

	mu     sync.Mutex
	digest []byte
	tgsKey []byte
	tgt    TicketAuthenticatorWrapper
	ssKey  []byte
	cst    TicketAuthenticatorWrapper
}

// NewClient returns a client for clientID. clientAddr is recorded in the
// tickets the KDC issues.
func NewClient(e *Engine, t Transport, clientID, clientAddr string) *Client {
	return &Client{
		engine:    e,
		transport: t,
		clientID:  clientID,
		addr:      clientAddr,
		log:       e.Logger(),
	}
}

// ClientID returns the client identifier.
func (c *Client) ClientID() string { return c.clientID }

// Login runs the KDC and TGS exchanges. A wrong password fails with an
// error matching ErrDecrypt.
func (c *Client) Login(ctx context.Context, password string) error {
	digest, err := c.engine.InitKDCRequest(c.clientID, password)
	if err != nil {
		return err
	}
	resp, err := c.transport.RequestTGT(ctx, c.clientID, c.addr)
	if err != nil {
		Wipe(digest)
		return fmt.Errorf("request TGT: %w", err)
	}
	kdc, err := c.engine.HandleKDCResponse(c.clientID, digest, resp)
	if err != nil {
		Wipe(digest)
		return err
	}
	tgsResp, err := c.transport.RequestCST(ctx, kdc.Wrapper)
	if err != nil {
		Wipe(digest)
		Wipe(kdc.SessionKey)
		return fmt.Errorf("request CST: %w", err)
	}
	tgs, err := c.engine.HandleTGSResponse(c.clientID, kdc.SessionKey, tgsResp)
	if err != nil {
		Wipe(digest)
		Wipe(kdc.SessionKey)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeLocked()
	c.digest = digest
	c.tgsKey = kdc.SessionKey
	c.tgt = kdc.Wrapper
	c.ssKey = tgs.SessionKey
	c.cst = tgs.Wrapper
	c.log.Debug(authlog.AreaClient, "logged in", "client", c.clientID)
	return nil
}

// Authorize presents the CST to the SS with a fresh authenticator, checks
// the SS reply and keeps the renewed ticket. It returns the wrapper for the
// next call.
func (c *Client) Authorize(ctx context.Context) (*TicketAuthenticatorWrapper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssKey == nil {
		return nil, fmt.Errorf("client %q is not logged in", c.clientID)
	}
	req, err := c.engine.InitSSRequest(c.ssKey, c.cst)
	if err != nil {
		return nil, err
	}
	reply, err := c.transport.ValidateCST(ctx, *req)
	if err != nil {
		return nil, fmt.Errorf("validate CST: %w", err)
	}
	ok, err := c.engine.HandleSSResponse(c.ssKey, *req, *reply)
	if err != nil {
		return nil, err
	}
	c.cst = *ok
	return cloneWrapper(ok), nil
}

// Refresh exchanges the held TGT for a new CST without the password.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tgsKey == nil {
		return fmt.Errorf("client %q is not logged in", c.clientID)
	}
	auth, err := MakeAuthenticator(c.clientID, c.engine.now(), c.tgsKey, UsageTGSAuthenticator)
	if err != nil {
		return err
	}
	resp, err := c.transport.RequestCST(ctx, TicketAuthenticatorWrapper{Ticket: c.tgt.Ticket, Authenticator: auth})
	if err != nil {
		return fmt.Errorf("request CST: %w", err)
	}
	tgs, err := c.engine.HandleTGSResponse(c.clientID, c.tgsKey, resp)
	if err != nil {
		return err
	}
	Wipe(c.ssKey)
	c.ssKey = tgs.SessionKey
	c.cst = tgs.Wrapper
	return nil
}

// ChangePassword replaces the client's password. The session stays valid.
// Once the server accepts the change the client keeps the new digest, even
// when the server reply then fails mutual authentication.
func (c *Client) ChangePassword(ctx context.Context, newPassword string) error {
	newDigest, err := c.engine.InitKDCRequest(c.clientID, newPassword)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssKey == nil {
		Wipe(newDigest)
		return fmt.Errorf("client %q is not logged in", c.clientID)
	}
	creds, err := c.engine.InitChangeCredentials(c.clientID, c.ssKey, c.digest, newDigest, c.cst)
	if err != nil {
		Wipe(newDigest)
		return err
	}
	reply, err := c.transport.ChangeCredentials(ctx, creds)
	if err != nil {
		Wipe(newDigest)
		return fmt.Errorf("change credentials: %w", err)
	}
	// The registry holds the new digest from here on, even if the reply
	// below fails to verify.
	Wipe(c.digest)
	c.digest = newDigest
	ok, err := c.engine.HandleSSResponse(c.ssKey, creds.Wrapper, *reply)
	if err != nil {
		return err
	}
	c.cst = *ok
	c.log.Info(authlog.AreaClient, "password changed", "client", c.clientID)
	return nil
}

// Ticket returns the current CST wrapper.
func (c *Client) Ticket() TicketAuthenticatorWrapper {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *cloneWrapper(&c.cst)
}

// Close zeroes the keys held by the client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeLocked()
	return nil
}

func (c *Client) wipeLocked() {
	Wipe(c.digest)
	Wipe(c.tgsKey)
	Wipe(c.ssKey)
	c.digest, c.tgsKey, c.ssKey = nil, nil, nil
	c.tgt = TicketAuthenticatorWrapper{}
	c.cst = TicketAuthenticatorWrapper{}
}

func cloneWrapper(w *TicketAuthenticatorWrapper) *TicketAuthenticatorWrapper {
	return &TicketAuthenticatorWrapper{
		Ticket:        bytes.Clone(w.Ticket),
		Authenticator: bytes.Clone(w.Authenticator),
	}
}
