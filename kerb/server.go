package kerb

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"

	"github.com/kardianos/ticketauth/authlog"
)

// Transport is the client's view of the KDC, TGS and SS. Implementations
// must deliver payloads byte for byte.
type Transport interface {
	RequestTGT(ctx context.Context, clientID, clientAddr string) (*LoginResponse, error)
	RequestCST(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketSessionKeyWrapper, error)
	ValidateCST(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error)
	ChangeCredentials(ctx context.Context, c *LoginCredentials) (*TicketAuthenticatorWrapper, error)
}

// AuthServerConfig configures an AuthServer.
type AuthServerConfig struct {
	// Engine runs the protocol steps. Required.
	Engine *Engine

	// Keys are the TGS and SS private keys. Random keys are generated if nil.
	Keys *ServerKeys

	// HideUnknownClients answers a KDC request for an unknown client with a
	// response that fails on the client the same way a wrong password does.
	HideUnknownClients bool
}

// AuthServer plays KDC, TGS and SS. It mints a fresh session key for every
// KDC and TGS exchange and serves credential changes.
type AuthServer struct {
	engine *Engine
	keys   *ServerKeys
	hide   bool
	log    *authlog.Logger
}

var _ Transport = (*AuthServer)(nil)

// NewAuthServer creates a new AuthServer with the given configuration.
func NewAuthServer(cfg AuthServerConfig) (*AuthServer, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Engine.Registry() == nil {
		return nil, fmt.Errorf("engine has no registry")
	}
	keys := cfg.Keys
	if keys == nil {
		var err error
		keys, err = GenerateServerKeys()
		if err != nil {
			return nil, fmt.Errorf("generate server keys: %w", err)
		}
	}
	if len(keys.TGS) != KeySize || len(keys.SS) != KeySize {
		return nil, fmt.Errorf("server keys must be %d bytes", KeySize)
	}
	return &AuthServer{
		engine: cfg.Engine,
		keys:   keys,
		hide:   cfg.HideUnknownClients,
		log:    cfg.Engine.Logger(),
	}, nil
}

// Engine returns the server's engine.
func (s *AuthServer) Engine() *Engine { return s.engine }

// RequestTGT answers a KDC request.
func (s *AuthServer) RequestTGT(ctx context.Context, clientID, clientAddr string) (*LoginResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tgsKey, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}
	defer Wipe(tgsKey)

	resp, err := s.engine.HandleKDCRequest(ctx, clientID, clientAddr, tgsKey, s.keys.TGS)
	if err != nil {
		s.log.Info(authlog.AreaKDC, "KDC request failed", "client", clientID, "addr", clientAddr, "reason", ReasonOf(err))
		if s.hide && KindOf(err) == KindNotFound {
			return s.decoy(clientID, clientAddr, tgsKey)
		}
		return nil, err
	}
	s.log.Debug(authlog.AreaKDC, "KDC request", "client", clientID, "addr", clientAddr)
	return resp, nil
}

// decoy builds a well formed response for an unknown client. The session
// key is sealed under a random digest, so the client fails to open it just
// as it would with a wrong password.
func (s *AuthServer) decoy(clientID, clientAddr string, tgsKey []byte) (*LoginResponse, error) {
	digest := make([]byte, KeySize)
	if _, err := rand.Read(digest); err != nil {
		return nil, cryptoErr("handle KDC request", err)
	}
	defer Wipe(digest)
	return s.engine.issue("handle KDC request", Ticket{
		ClientID:   clientID,
		Realm:      s.engine.Realm(),
		ClientAddr: clientAddr,
		Validity:   s.engine.period(s.engine.now()),
		SessionKey: tgsKey,
	}, s.keys.TGS, digest, UsageKDCSessionKey)
}

// RequestCST answers a TGS request.
func (s *AuthServer) RequestCST(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketSessionKeyWrapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ssKey, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}
	defer Wipe(ssKey)

	resp, err := s.engine.HandleTGSRequest(nil, s.keys.TGS, ssKey, s.keys.SS, w)
	if err != nil {
		s.log.Info(authlog.AreaTGS, "TGS request rejected", "reason", ReasonOf(err))
		return nil, err
	}
	return resp, nil
}

// ValidateCST answers an SS request.
func (s *AuthServer) ValidateCST(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.engine.HandleSSRequest(nil, s.keys.SS, w)
	if err != nil {
		s.log.Info(authlog.AreaService, "SS request rejected", "reason", ReasonOf(err))
		return nil, err
	}
	return out, nil
}

// ChangeCredentials serves a credential change request.
func (s *AuthServer) ChangeCredentials(ctx context.Context, c *LoginCredentials) (*TicketAuthenticatorWrapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.engine.ChangeCredentials(ctx, nil, s.keys.SS, c)
	if err != nil {
		var id string
		if c != nil {
			id = c.ClientID
		}
		s.log.Info(authlog.AreaRegistry, "credential change failed", "client", id, "reason", ReasonOf(err))
		return nil, err
	}
	return out, nil
}

// Close zeroes the server keys.
func (s *AuthServer) Close() error {
	s.keys.Wipe()
	return nil
}

// Service is an SS for a resource other than the AuthServer itself. It
// shares its private key with the TGS that issues its CSTs.
type Service struct {
	engine *Engine
	key    []byte
	log    *authlog.Logger
}

// NewService returns a Service validating CSTs sealed under privateKey.
// The key is copied.
func NewService(e *Engine, privateKey []byte) (*Service, error) {
	if e == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("service key must be %d bytes", KeySize)
	}
	return &Service{engine: e, key: bytes.Clone(privateKey), log: e.Logger()}, nil
}

// Validate checks a presented CST and returns the renewed CST with the
// mutual authentication reply.
func (s *Service) Validate(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.engine.HandleSSRequest(nil, s.key, w)
	if err != nil {
		s.log.Info(authlog.AreaService, "service request rejected", "reason", ReasonOf(err))
		return nil, err
	}
	return out, nil
}

// Close zeroes the service key.
func (s *Service) Close() error {
	Wipe(s.key)
	return nil
}
