package kerb

import (
	"context"
)

// LoopbackTransport connects a Client to an in-process Transport. Every
// message is encoded and decoded on the way, so both sides only share
// bytes.
type LoopbackTransport struct {
	Server Transport
}

var _ Transport = LoopbackTransport{}

func (t LoopbackTransport) RequestTGT(ctx context.Context, clientID, clientAddr string) (*LoginResponse, error) {
	resp, err := t.Server.RequestTGT(ctx, clientID, clientAddr)
	if err != nil {
		return nil, err
	}
	return roundTripResponse(resp)
}

func (t LoopbackTransport) RequestCST(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketSessionKeyWrapper, error) {
	in, err := roundTripWrapper(&w)
	if err != nil {
		return nil, err
	}
	resp, err := t.Server.RequestCST(ctx, *in)
	if err != nil {
		return nil, err
	}
	return roundTripResponse(resp)
}

func (t LoopbackTransport) ValidateCST(ctx context.Context, w TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	in, err := roundTripWrapper(&w)
	if err != nil {
		return nil, err
	}
	out, err := t.Server.ValidateCST(ctx, *in)
	if err != nil {
		return nil, err
	}
	return roundTripWrapper(out)
}

func (t LoopbackTransport) ChangeCredentials(ctx context.Context, c *LoginCredentials) (*TicketAuthenticatorWrapper, error) {
	b, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	in := new(LoginCredentials)
	if err := in.Unmarshal(b); err != nil {
		return nil, err
	}
	out, err := t.Server.ChangeCredentials(ctx, in)
	if err != nil {
		return nil, err
	}
	return roundTripWrapper(out)
}

func roundTripWrapper(w *TicketAuthenticatorWrapper) (*TicketAuthenticatorWrapper, error) {
	b, err := w.Marshal()
	if err != nil {
		return nil, err
	}
	out := new(TicketAuthenticatorWrapper)
	if err := out.Unmarshal(b); err != nil {
		return nil, err
	}
	return out, nil
}

func roundTripResponse(r *LoginResponse) (*LoginResponse, error) {
	b, err := r.Marshal()
	if err != nil {
		return nil, err
	}
	out := new(LoginResponse)
	if err := out.Unmarshal(b); err != nil {
		return nil, err
	}
	return out, nil
}
