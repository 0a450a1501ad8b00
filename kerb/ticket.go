package kerb

import (
	"fmt"
	"time"
)

// MakeTicket encrypts t under the issuer private key.
func MakeTicket(t Ticket, issuerKey []byte) ([]byte, error) {
	if t.Validity.End.Before(t.Validity.Start) {
		return nil, cryptoErr("make ticket", fmt.Errorf("validity period ends before it starts: %s", t.Validity))
	}
	if len(t.SessionKey) != KeySize {
		return nil, cryptoErr("make ticket", fmt.Errorf("session key is %d bytes, want %d", len(t.SessionKey), KeySize))
	}
	start, err := toWireTime(t.Validity.Start)
	if err != nil {
		return nil, cryptoErr("make ticket", err)
	}
	end, err := toWireTime(t.Validity.End)
	if err != nil {
		return nil, cryptoErr("make ticket", err)
	}
	part := encTicketPart{
		ClientID:   t.ClientID,
		Realm:      t.Realm,
		ClientAddr: t.ClientAddr,
		StartTime:  start,
		EndTime:    end,
		Key:        encryptionKey{KeyType: keyTypeAES256, KeyValue: t.SessionKey},
	}
	ct, err := sealApp(part, appTagTicket, issuerKey, UsageTicket)
	if err != nil {
		return nil, withOp("make ticket", err)
	}
	return ct, nil
}

// OpenTicket decrypts a ticket made by MakeTicket. Any key other than the
// issuer's yields ErrDecrypt.
func OpenTicket(ticket, issuerKey []byte) (*Ticket, error) {
	var part encTicketPart
	if err := openApp(ticket, appTagTicket, issuerKey, UsageTicket, &part); err != nil {
		return nil, withOp("open ticket", err)
	}
	if part.Key.KeyType != keyTypeAES256 || len(part.Key.KeyValue) != KeySize {
		return nil, cryptoErr("open ticket", fmt.Errorf("unsupported session key type %d", part.Key.KeyType))
	}
	t := &Ticket{
		ClientID:   part.ClientID,
		Realm:      part.Realm,
		ClientAddr: part.ClientAddr,
		Validity: ValidityPeriod{
			Start: fromWireTime(part.StartTime),
			End:   fromWireTime(part.EndTime),
		},
		SessionKey: part.Key.KeyValue,
	}
	if t.Validity.End.Before(t.Validity.Start) {
		return nil, cryptoErr("open ticket", fmt.Errorf("validity period ends before it starts: %s", t.Validity))
	}
	return t, nil
}

// MakeAuthenticator encrypts {clientID, ts} under the session key shared
// with the next verifier.
func MakeAuthenticator(clientID string, ts time.Time, sessionKey []byte, usage KeyUsage) ([]byte, error) {
	ctime, err := toWireTime(ts)
	if err != nil {
		return nil, cryptoErr("make authenticator", err)
	}
	a := encAuthenticator{ClientID: clientID, CTime: ctime}
	ct, err := sealApp(a, appTagAuthenticator, sessionKey, usage)
	if err != nil {
		return nil, withOp("make authenticator", err)
	}
	return ct, nil
}

// OpenAuthenticator decrypts an authenticator made by MakeAuthenticator.
func OpenAuthenticator(auth, sessionKey []byte, usage KeyUsage) (*Authenticator, error) {
	var a encAuthenticator
	if err := openApp(auth, appTagAuthenticator, sessionKey, usage, &a); err != nil {
		return nil, withOp("open authenticator", err)
	}
	return &Authenticator{ClientID: a.ClientID, Timestamp: fromWireTime(a.CTime)}, nil
}

// sealSessionKey encrypts a session key for delivery under key.
func sealSessionKey(sessionKey, key []byte, usage KeyUsage) ([]byte, error) {
	return sealApp(encryptionKey{KeyType: keyTypeAES256, KeyValue: sessionKey}, appTagSessionKey, key, usage)
}

// openSessionKey recovers a session key sealed by sealSessionKey.
func openSessionKey(ct, key []byte, usage KeyUsage) ([]byte, error) {
	var k encryptionKey
	if err := openApp(ct, appTagSessionKey, key, usage, &k); err != nil {
		return nil, err
	}
	if k.KeyType != keyTypeAES256 || len(k.KeyValue) != KeySize {
		return nil, cryptoErr("decrypt", fmt.Errorf("unsupported session key type %d", k.KeyType))
	}
	return k.KeyValue, nil
}

func sealCredential(digest, key []byte) ([]byte, error) {
	return sealApp(encCredential{Digest: digest}, appTagCredential, key, UsageCredentials)
}

func openCredential(ct, key []byte) ([]byte, error) {
	var c encCredential
	if err := openApp(ct, appTagCredential, key, UsageCredentials, &c); err != nil {
		return nil, err
	}
	return c.Digest, nil
}
