package kerb

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/kardianos/ticketauth/authlog"
)

// Clock is the engine's only environment dependency.
type Clock interface {
	Now() time.Time
}

// ClockFunc is a function adapter for Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// DefaultTicketLifetime is the validity of a freshly issued TGT or CST.
const DefaultTicketLifetime = 15 * time.Minute

// Config configures an Engine.
type Config struct {
	// Realm is written into every ticket and checked on every presentation.
	Realm string

	// Registry holds the password digests. Only the KDC and credential
	// change steps use it; a client side engine leaves it nil.
	Registry Registry

	// Hasher derives the long term key on the client side.
	// Defaults to StringToKeyHasher for Realm.
	Hasher PasswordHasher

	// Clock defaults to the wall clock.
	Clock Clock

	// TicketLifetime is how long tickets are valid (default 15 minutes).
	TicketLifetime time.Duration

	// ClockSkew widens each validity window on both sides. Zero means the
	// authenticator timestamp must lie inside the window exactly.
	ClockSkew time.Duration

	// Logger for debug output. If nil, logs are discarded.
	Logger *authlog.Logger
}

// Engine implements the protocol steps. It keeps no session state and is
// safe for concurrent use.
type Engine struct {
	config Config
}

// New returns an Engine for cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.TicketLifetime < 0 || cfg.ClockSkew < 0 {
		return nil, fmt.Errorf("ticket lifetime and clock skew must not be negative")
	}
	if cfg.TicketLifetime == 0 {
		cfg.TicketLifetime = DefaultTicketLifetime
	}
	if cfg.Hasher == nil {
		cfg.Hasher = StringToKeyHasher{Realm: cfg.Realm}
	}
	if cfg.Clock == nil {
		cfg.Clock = ClockFunc(time.Now)
	}
	return &Engine{config: cfg}, nil
}

// Realm returns the configured realm.
func (e *Engine) Realm() string { return e.config.Realm }

// Hasher returns the password hasher.
func (e *Engine) Hasher() PasswordHasher { return e.config.Hasher }

// Registry returns the credential registry, possibly nil.
func (e *Engine) Registry() Registry { return e.config.Registry }

// Logger returns the configured logger, possibly nil.
func (e *Engine) Logger() *authlog.Logger { return e.config.Logger }

// now drops the monotonic reading so times compare equal after a round
// trip through the wire encoding.
func (e *Engine) now() time.Time {
	return e.config.Clock.Now().UTC()
}

func (e *Engine) period(start time.Time) ValidityPeriod {
	return ValidityPeriod{Start: start, End: start.Add(e.config.TicketLifetime)}
}

// verify opens the ticket of w with privKey and its authenticator with the
// session key inside the ticket, then checks they belong together. A non
// empty sessionKey must equal the ticket's session key. Every failure is a
// rejection.
func (e *Engine) verify(op string, sessionKey, privKey []byte, w TicketAuthenticatorWrapper, usage KeyUsage) (*Ticket, *Authenticator, error) {
	t, err := OpenTicket(w.Ticket, privKey)
	if err != nil {
		return nil, nil, reject(op, "ticket does not open under private key", err)
	}
	if len(sessionKey) != 0 && subtle.ConstantTimeCompare(sessionKey, t.SessionKey) != 1 {
		Wipe(t.SessionKey)
		return nil, nil, reject(op, "session key does not match ticket", nil)
	}
	a, err := OpenAuthenticator(w.Authenticator, t.SessionKey, usage)
	if err != nil {
		Wipe(t.SessionKey)
		return nil, nil, reject(op, "authenticator does not open under session key", err)
	}
	switch {
	case a.ClientID != t.ClientID:
		err = reject(op, fmt.Sprintf("authenticator client %q does not match ticket client %q", a.ClientID, t.ClientID), nil)
	case t.Realm != e.config.Realm:
		err = reject(op, fmt.Sprintf("ticket realm %q, want %q", t.Realm, e.config.Realm), nil)
	case !t.Validity.Contains(a.Timestamp, e.config.ClockSkew):
		err = reject(op, fmt.Sprintf("authenticator time %s outside validity %s", a.Timestamp.Format(time.RFC3339Nano), t.Validity), nil)
	}
	if err != nil {
		Wipe(t.SessionKey)
		return nil, nil, err
	}
	return t, a, nil
}
