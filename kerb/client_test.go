package kerb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"
)

func newTestServer(t *testing.T, hide bool) (*testEnv, *AuthServer) {
	t.Helper()
	env := newTestEnv(t)
	srv, err := NewAuthServer(AuthServerConfig{
		Engine:             env.engine,
		Keys:               &ServerKeys{TGS: env.tgs, SS: env.ss},
		HideUnknownClients: hide,
	})
	if err != nil {
		t.Fatalf("NewAuthServer: %v", err)
	}
	return env, srv
}

func TestClientLoginAndAuthorize(t *testing.T) {
	ctx := context.Background()
	env, srv := newTestServer(t, false)
	c := NewClient(env.engine, LoopbackTransport{Server: srv}, "user-42", "192.0.2.10")
	defer c.Close()

	if _, err := c.Authorize(ctx); err == nil {
		t.Fatal("Authorize before Login succeeded")
	}
	if err := c.Login(ctx, "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	for i := 0; i < 3; i++ {
		env.clock.Advance(time.Minute)
		w, err := c.Authorize(ctx)
		if err != nil {
			t.Fatalf("Authorize %d: %v", i, err)
		}
		cst, err := OpenTicket(w.Ticket, env.ss)
		if err != nil {
			t.Fatalf("OpenTicket: %v", err)
		}
		if cst.ClientID != "user-42" {
			t.Fatalf("CST client = %q", cst.ClientID)
		}
		if !cst.Validity.Start.Equal(env.clock.Now()) {
			t.Fatalf("CST not renewed: %s", cst.Validity)
		}
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := c.Authorize(ctx); err != nil {
		t.Fatalf("Authorize after Refresh: %v", err)
	}
}

func TestClientExpiredTicket(t *testing.T) {
	ctx := context.Background()
	env, srv := newTestServer(t, false)
	c := NewClient(env.engine, srv, "user-42", "")
	if err := c.Login(ctx, "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	env.clock.Advance(DefaultTicketLifetime + time.Millisecond)
	if _, err := c.Authorize(ctx); !errors.Is(err, ErrRejected) {
		t.Fatalf("Authorize with expired CST = %v, want ErrRejected", err)
	}
}

func TestClientWrongPassword(t *testing.T) {
	env, srv := newTestServer(t, false)
	c := NewClient(env.engine, LoopbackTransport{Server: srv}, "user-42", "")
	if err := c.Login(context.Background(), "wrong-password"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("Login = %v, want ErrDecrypt", err)
	}
}

func TestHideUnknownClients(t *testing.T) {
	ctx := context.Background()

	env, srv := newTestServer(t, false)
	c := NewClient(env.engine, srv, "nobody", "")
	if err := c.Login(ctx, "whatever"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Login unknown = %v, want ErrNotFound", err)
	}

	env, srv = newTestServer(t, true)
	unknown := NewClient(env.engine, srv, "nobody", "")
	errUnknown := unknown.Login(ctx, "whatever")
	wrong := NewClient(env.engine, srv, "user-42", "")
	errWrong := wrong.Login(ctx, "whatever")
	if !errors.Is(errUnknown, ErrDecrypt) || !errors.Is(errWrong, ErrDecrypt) {
		t.Fatalf("unknown = %v, wrong password = %v, want ErrDecrypt for both", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("errors differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestClientChangePassword(t *testing.T) {
	ctx := context.Background()
	env, srv := newTestServer(t, false)
	tr := LoopbackTransport{Server: srv}
	c := NewClient(env.engine, tr, "user-42", "")
	if err := c.Login(ctx, "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.ChangePassword(ctx, "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := c.Authorize(ctx); err != nil {
		t.Fatalf("Authorize after ChangePassword: %v", err)
	}

	old := NewClient(env.engine, tr, "user-42", "")
	if err := old.Login(ctx, "correct-password"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("Login with old password = %v, want ErrDecrypt", err)
	}
	fresh := NewClient(env.engine, tr, "user-42", "")
	if err := fresh.Login(ctx, "new-password"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}

	// c holds the current digest and can change again.
	if err := c.ChangePassword(ctx, "third-password"); err != nil {
		t.Fatalf("second ChangePassword: %v", err)
	}
	// fresh holds a digest that is now stale.
	if err := fresh.ChangePassword(ctx, "fourth-password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ChangePassword with stale digest = %v, want ErrUnauthorized", err)
	}
}

func TestClientClose(t *testing.T) {
	ctx := context.Background()
	env, srv := newTestServer(t, false)
	c := NewClient(env.engine, srv, "user-42", "")
	if err := c.Login(ctx, "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	key := c.ssKey
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bytes.Equal(key, make([]byte, KeySize)) {
		t.Fatal("Close did not zero the session key")
	}
	if _, err := c.Authorize(ctx); err == nil {
		t.Fatal("Authorize after Close succeeded")
	}
}

func TestServerCancelledContext(t *testing.T) {
	env, srv := newTestServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(env.engine, srv, "user-42", "")
	if err := c.Login(ctx, "correct-password"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Login = %v, want context.Canceled", err)
	}
}

func TestServerKeytab(t *testing.T) {
	kt, err := NewServerKeytab(testRealm, "tgs-secret", "ss-secret", 1)
	if err != nil {
		t.Fatalf("NewServerKeytab: %v", err)
	}
	b, err := kt.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "auth.keytab")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write keytab: %v", err)
	}

	keys, err := LoadServerKeys(path, testRealm)
	if err != nil {
		t.Fatalf("LoadServerKeys: %v", err)
	}
	if len(keys.TGS) != KeySize || len(keys.SS) != KeySize || bytes.Equal(keys.TGS, keys.SS) {
		t.Fatalf("bad keys: %x %x", keys.TGS, keys.SS)
	}

	// Keys are stable across loads, so tickets survive a restart.
	kt2 := keytab.New()
	if err := kt2.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	again, err := ServerKeysFromKeytab(kt2, testRealm)
	if err != nil {
		t.Fatalf("ServerKeysFromKeytab: %v", err)
	}
	if !bytes.Equal(again.TGS, keys.TGS) || !bytes.Equal(again.SS, keys.SS) {
		t.Fatal("keys differ between loads")
	}

	if _, err := ServerKeysFromKeytab(kt2, "OTHER.REALM"); err == nil {
		t.Fatal("keys found for another realm")
	}
	if _, err := NewServerKeytab(testRealm, "same", "same", 1); err == nil {
		t.Fatal("identical secrets accepted")
	}

	env := newTestEnv(t)
	srv, err := NewAuthServer(AuthServerConfig{Engine: env.engine, Keys: keys})
	if err != nil {
		t.Fatalf("NewAuthServer: %v", err)
	}
	c := NewClient(env.engine, srv, "user-42", "")
	if err := c.Login(context.Background(), "correct-password"); err != nil {
		t.Fatalf("Login with keytab keys: %v", err)
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if _, err := NewService(env.engine, []byte("short")); err == nil {
		t.Fatal("NewService accepted a short key")
	}
	svc, err := NewService(env.engine, env.ss)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	tgs := env.login(t, "user-42", "correct-password")
	reply, err := svc.Validate(ctx, tgs.Wrapper)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := env.engine.HandleSSResponse(tgs.SessionKey, tgs.Wrapper, *reply); err != nil {
		t.Fatalf("HandleSSResponse: %v", err)
	}

	other, err := NewService(env.engine, mustKey(t))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := other.Validate(ctx, tgs.Wrapper); !errors.Is(err, ErrRejected) {
		t.Fatalf("Validate under another key = %v, want ErrRejected", err)
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := svc.Validate(ctx, tgs.Wrapper); !errors.Is(err, ErrRejected) {
		t.Fatalf("Validate after Close = %v, want ErrRejected", err)
	}
}

func TestClientWithoutRegistry(t *testing.T) {
	ctx := context.Background()
	env, srv := newTestServer(t, false)
	ce, err := New(Config{Realm: testRealm, Hasher: SHA256Hasher{}, Clock: env.clock})
	if err != nil {
		t.Fatalf("New client engine: %v", err)
	}
	c := NewClient(ce, LoopbackTransport{Server: srv}, "user-42", "192.0.2.10")
	defer c.Close()

	if err := c.Login(ctx, "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.Authorize(ctx); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := c.ChangePassword(ctx, "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	d, err := env.reg.LookupPasswordDigest(ctx, "user-42")
	if err != nil {
		t.Fatalf("LookupPasswordDigest: %v", err)
	}
	if !bytes.Equal(d, HashPassword("new-password")) {
		t.Fatal("registry digest not updated")
	}
}

// forgedReply passes requests through and replaces the authenticator of the
// credential change reply.
type forgedReply struct {
	Transport
}

func (f forgedReply) ChangeCredentials(ctx context.Context, c *LoginCredentials) (*TicketAuthenticatorWrapper, error) {
	out, err := f.Transport.ChangeCredentials(ctx, c)
	if err != nil {
		return nil, err
	}
	out.Authenticator = bytes.Clone(c.Wrapper.Authenticator)
	return out, nil
}

func TestChangePasswordKeepsCommittedDigest(t *testing.T) {
	ctx := context.Background()
	env, srv := newTestServer(t, false)
	c := NewClient(env.engine, forgedReply{Transport: srv}, "user-42", "")
	defer c.Close()
	if err := c.Login(ctx, "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.ChangePassword(ctx, "new-password"); !errors.Is(err, ErrRejected) {
		t.Fatalf("ChangePassword with forged reply = %v, want ErrRejected", err)
	}
	stored, err := env.reg.LookupPasswordDigest(ctx, "user-42")
	if err != nil {
		t.Fatalf("LookupPasswordDigest: %v", err)
	}
	if !bytes.Equal(stored, HashPassword("new-password")) {
		t.Fatal("server did not commit the new digest")
	}
	c.mu.Lock()
	held := bytes.Clone(c.digest)
	c.mu.Unlock()
	if !bytes.Equal(held, stored) {
		t.Fatal("client digest differs from the registry")
	}
}
