package kerb

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestTicketRoundTrip(t *testing.T) {
	priv := mustKey(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Ticket{
		ClientID:   "user-42",
		Realm:      "TEST.LOCAL",
		ClientAddr: "192.0.2.10:5000",
		Validity:   ValidityPeriod{Start: start, End: start.Add(15 * time.Minute)},
		SessionKey: mustKey(t),
	}
	ct, err := MakeTicket(in, priv)
	if err != nil {
		t.Fatalf("MakeTicket: %v", err)
	}
	got, err := OpenTicket(ct, priv)
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}
	if got.ClientID != in.ClientID || got.Realm != in.Realm || got.ClientAddr != in.ClientAddr {
		t.Fatalf("OpenTicket = %+v", got)
	}
	if !got.Validity.Start.Equal(in.Validity.Start) || !got.Validity.End.Equal(in.Validity.End) {
		t.Fatalf("validity = %s, want %s", got.Validity, in.Validity)
	}
	if !bytes.Equal(got.SessionKey, in.SessionKey) {
		t.Fatal("session key changed")
	}

	if _, err := OpenTicket(ct, mustKey(t)); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("OpenTicket with other key = %v, want ErrDecrypt", err)
	}
}

func TestTicketSubMillisecondRoundTrip(t *testing.T) {
	priv := mustKey(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 900_001, time.UTC)
	in := Ticket{
		ClientID:   "user-42",
		Realm:      "TEST.LOCAL",
		Validity:   ValidityPeriod{Start: start, End: start.Add(15*time.Minute + 250*time.Microsecond)},
		SessionKey: mustKey(t),
	}
	ct, err := MakeTicket(in, priv)
	if err != nil {
		t.Fatalf("MakeTicket: %v", err)
	}
	got, err := OpenTicket(ct, priv)
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}
	if !got.Validity.Start.Equal(in.Validity.Start) || !got.Validity.End.Equal(in.Validity.End) {
		t.Fatalf("validity = %s, want %s", got.Validity, in.Validity)
	}

	ts := start.Add(-500 * time.Microsecond)
	auth, err := MakeAuthenticator("user-42", ts, in.SessionKey, UsageTGSAuthenticator)
	if err != nil {
		t.Fatalf("MakeAuthenticator: %v", err)
	}
	a, err := OpenAuthenticator(auth, in.SessionKey, UsageTGSAuthenticator)
	if err != nil {
		t.Fatalf("OpenAuthenticator: %v", err)
	}
	if !a.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %s, want %s", a.Timestamp.Format(time.RFC3339Nano), ts.Format(time.RFC3339Nano))
	}
}

func TestTimeOutsideWireRange(t *testing.T) {
	key := mustKey(t)
	if _, err := MakeAuthenticator("user-42", time.Time{}, key, UsageSSAuthenticator); !errors.Is(err, ErrCrypto) {
		t.Fatalf("MakeAuthenticator(zero time) = %v, want ErrCrypto", err)
	}
	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := Ticket{ClientID: "a", Validity: ValidityPeriod{Start: far, End: far}, SessionKey: mustKey(t)}
	if _, err := MakeTicket(tk, key); !errors.Is(err, ErrCrypto) {
		t.Fatalf("MakeTicket(year 2300) = %v, want ErrCrypto", err)
	}
}

func TestMakeTicketInvalid(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		t    Ticket
		key  []byte
	}{
		{"end before start", Ticket{ClientID: "a", Validity: ValidityPeriod{Start: start, End: start.Add(-time.Second)}, SessionKey: make([]byte, KeySize)}, make([]byte, KeySize)},
		{"short session key", Ticket{ClientID: "a", Validity: ValidityPeriod{Start: start, End: start}, SessionKey: make([]byte, 16)}, make([]byte, KeySize)},
		{"short private key", Ticket{ClientID: "a", Validity: ValidityPeriod{Start: start, End: start}, SessionKey: make([]byte, KeySize)}, make([]byte, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MakeTicket(tt.t, tt.key); !errors.Is(err, ErrCrypto) {
				t.Fatalf("MakeTicket = %v, want ErrCrypto", err)
			}
		})
	}
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	key := mustKey(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123_000_000, time.UTC)
	ct, err := MakeAuthenticator("user-42", ts, key, UsageSSAuthenticator)
	if err != nil {
		t.Fatalf("MakeAuthenticator: %v", err)
	}
	a, err := OpenAuthenticator(ct, key, UsageSSAuthenticator)
	if err != nil {
		t.Fatalf("OpenAuthenticator: %v", err)
	}
	if a.ClientID != "user-42" || !a.Timestamp.Equal(ts) {
		t.Fatalf("OpenAuthenticator = %+v", a)
	}
	if _, err := OpenAuthenticator(ct, key, UsageTGSAuthenticator); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("OpenAuthenticator with other usage = %v, want ErrDecrypt", err)
	}
}

func TestValidityContains(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := ValidityPeriod{Start: start, End: start.Add(time.Minute)}
	tests := []struct {
		name string
		at   time.Time
		skew time.Duration
		want bool
	}{
		{"start", start, 0, true},
		{"end", p.End, 0, true},
		{"inside", start.Add(30 * time.Second), 0, true},
		{"before start", start.Add(-time.Millisecond), 0, false},
		{"after end", p.End.Add(time.Millisecond), 0, false},
		{"skewed start", start.Add(-time.Second), time.Second, true},
		{"skewed end", p.End.Add(time.Second), time.Second, true},
		{"past skew", p.End.Add(time.Second + time.Millisecond), time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Contains(tt.at, tt.skew); got != tt.want {
				t.Fatalf("Contains(%s, %s) = %v, want %v", tt.at, tt.skew, got, tt.want)
			}
		})
	}
}

func TestWrapperMarshal(t *testing.T) {
	w := TicketAuthenticatorWrapper{Ticket: []byte{1, 2, 3}, Authenticator: []byte{4, 5}}
	b, err := w.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got TicketAuthenticatorWrapper
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(got.Ticket, w.Ticket) || !bytes.Equal(got.Authenticator, w.Authenticator) {
		t.Fatalf("Unmarshal = %+v", got)
	}
	if err := got.Unmarshal(append(b, 0)); err == nil {
		t.Fatal("Unmarshal accepted trailing data")
	}
	var resp LoginResponse
	if err := resp.Unmarshal(b); err == nil {
		t.Fatal("LoginResponse accepted a wrapper encoding")
	}
}
