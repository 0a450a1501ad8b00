// Package kerb implements a three party ticket protocol in the style of
// Kerberos 5.
//
// A Key Distribution Center (KDC) verifies a password derived key and issues
// a Ticket Granting Ticket (TGT). The Ticket Granting Service (TGS) exchanges
// the TGT for a Client-Server Ticket (CST). A Service Server (SS) validates
// the CST on every call and renews it.
//
// The Engine holds no per-session state. Everything a step needs travels in
// the wrappers defined here, encrypted with the envelope in crypto.go.
package kerb

import (
	"fmt"
	"math"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// KeyUsage separates encryptions made under the same key (RFC 3961 Section 3).
type KeyUsage uint32

// Key usage numbers, chosen to line up with RFC 4120 Section 7.5.1 where a
// counterpart exists.
const (
	UsageTicket           KeyUsage = 2  // TGT and CST, under the issuer private key
	UsageKDCSessionKey    KeyUsage = 3  // TGS session key, under the password digest
	UsageTGSAuthenticator KeyUsage = 7  // authenticator sent with a TGT
	UsageTGSSessionKey    KeyUsage = 8  // SS session key, under the TGS session key
	UsageSSAuthenticator  KeyUsage = 11 // authenticator sent with a CST
	UsageSSResponse       KeyUsage = 12 // mutual authentication reply
	UsageCredentials      KeyUsage = 13 // password digests during a credential change
)

// APPLICATION tags of the encrypted parts.
const (
	appTagTicket        = 3
	appTagAuthenticator = 2
	appTagSessionKey    = 25
	appTagCredential    = 21
	appTagWrapper       = 1
	appTagLoginResponse = 11
	appTagCredentials   = 22
)

// keyTypeAES256 is the etype of every key in the system.
const keyTypeAES256 = 18 // aes256-cts-hmac-sha1-96

// ValidityPeriod is the window in which a ticket may be presented.
type ValidityPeriod struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the period widened by skew on both
// sides. Both boundaries are inclusive.
func (p ValidityPeriod) Contains(t time.Time, skew time.Duration) bool {
	return !t.Before(p.Start.Add(-skew)) && !t.After(p.End.Add(skew))
}

func (p ValidityPeriod) String() string {
	return fmt.Sprintf("[%s, %s]", p.Start.UTC().Format(time.RFC3339Nano), p.End.UTC().Format(time.RFC3339Nano))
}

// Ticket is the decrypted content of a TGT or CST. Clients never see it in
// the clear.
type Ticket struct {
	ClientID   string
	Realm      string
	ClientAddr string
	Validity   ValidityPeriod
	SessionKey []byte
}

// Authenticator proves current possession of a session key.
type Authenticator struct {
	ClientID  string
	Timestamp time.Time
}

// TicketAuthenticatorWrapper is the unit a client presents to the TGS and SS.
// Both fields are opaque ciphertext.
type TicketAuthenticatorWrapper struct {
	Ticket        []byte `asn1:"explicit,tag:0"`
	Authenticator []byte `asn1:"explicit,tag:1"`
}

// LoginResponse delivers a ticket together with the session key bound to it,
// encrypted under a key the requester already holds.
type LoginResponse struct {
	Ticket     []byte `asn1:"explicit,tag:0"`
	SessionKey []byte `asn1:"explicit,tag:1"`
}

// TicketSessionKeyWrapper is the TGS reply. It has the same shape as the KDC
// reply.
type TicketSessionKeyWrapper = LoginResponse

// LoginCredentials asks the SS to replace a stored password digest. Both
// digests are encrypted under the SS session key.
type LoginCredentials struct {
	ClientID       string                     `asn1:"utf8,explicit,tag:0"`
	OldCredentials []byte                     `asn1:"explicit,tag:1"`
	NewCredentials []byte                     `asn1:"explicit,tag:2"`
	Wrapper        TicketAuthenticatorWrapper `asn1:"explicit,tag:3"`
}

// encTicketPart is the plaintext of a ticket.
type encTicketPart struct {
	ClientID   string        `asn1:"utf8,explicit,tag:0"`
	Realm      string        `asn1:"general,explicit,tag:1"`
	ClientAddr string        `asn1:"general,explicit,tag:2"`
	StartTime  int64         `asn1:"explicit,tag:3"`
	EndTime    int64         `asn1:"explicit,tag:4"`
	Key        encryptionKey `asn1:"explicit,tag:5"`
}

type encAuthenticator struct {
	ClientID string `asn1:"utf8,explicit,tag:0"`
	CTime    int64  `asn1:"explicit,tag:1"`
}

type encryptionKey struct {
	KeyType  int32  `asn1:"explicit,tag:0"`
	KeyValue []byte `asn1:"explicit,tag:1"`
}

type encCredential struct {
	Digest []byte `asn1:"explicit,tag:0"`
}

// Wire timestamps are int64 Unix nanoseconds, which covers the years 1678
// to 2262 at full time.Time precision.
var (
	minWireTime = time.Unix(0, math.MinInt64)
	maxWireTime = time.Unix(0, math.MaxInt64)
)

func toWireTime(t time.Time) (int64, error) {
	if t.Before(minWireTime) || t.After(maxWireTime) {
		return 0, fmt.Errorf("time %s outside the encodable range", t.UTC().Format(time.RFC3339Nano))
	}
	return t.UnixNano(), nil
}

func fromWireTime(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func appParams(tag int) string {
	return fmt.Sprintf("application,explicit,tag:%d", tag)
}

// marshalApp encodes v as a SEQUENCE wrapped in an APPLICATION tag.
func marshalApp(v any, tag int) ([]byte, error) {
	inner, err := asn1.Marshal(v)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        tag,
		IsCompound: true,
		Bytes:      inner,
	})
}

// unmarshalApp decodes b into v and rejects trailing bytes.
func unmarshalApp(b []byte, v any, tag int) error {
	rest, err := asn1.UnmarshalWithParams(b, v, appParams(tag))
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%d trailing bytes", len(rest))
	}
	return nil
}

// Marshal encodes the wrapper for transport.
func (w TicketAuthenticatorWrapper) Marshal() ([]byte, error) {
	return marshalApp(w, appTagWrapper)
}

// Unmarshal decodes a wrapper produced by Marshal.
func (w *TicketAuthenticatorWrapper) Unmarshal(b []byte) error {
	if err := unmarshalApp(b, w, appTagWrapper); err != nil {
		return fmt.Errorf("unmarshal wrapper: %w", err)
	}
	return nil
}

// Marshal encodes the response for transport.
func (r LoginResponse) Marshal() ([]byte, error) {
	return marshalApp(r, appTagLoginResponse)
}

// Unmarshal decodes a response produced by Marshal.
func (r *LoginResponse) Unmarshal(b []byte) error {
	if err := unmarshalApp(b, r, appTagLoginResponse); err != nil {
		return fmt.Errorf("unmarshal login response: %w", err)
	}
	return nil
}

// Marshal encodes the credential change request for transport.
func (c LoginCredentials) Marshal() ([]byte, error) {
	return marshalApp(c, appTagCredentials)
}

// Unmarshal decodes a request produced by Marshal.
func (c *LoginCredentials) Unmarshal(b []byte) error {
	if err := unmarshalApp(b, c, appTagCredentials); err != nil {
		return fmt.Errorf("unmarshal login credentials: %w", err)
	}
	return nil
}
