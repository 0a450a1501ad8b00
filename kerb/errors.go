package kerb

import (
	"errors"
	"fmt"
)

// Kind classifies protocol failures.
type Kind int

const (
	KindCrypto       Kind = iota + 1 // malformed key or payload serialization failure
	KindDecrypt                      // wrong key or corrupted ciphertext
	KindRejected                     // ticket or authenticator failed validation
	KindNotFound                     // client unknown to the registry
	KindUnauthorized                 // old credentials did not match
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrCrypto       = errors.New("crypto error")
	ErrDecrypt      = errors.New("decrypt failure")
	ErrRejected     = errors.New("rejected")
	ErrNotFound     = errors.New("client not found")
	ErrUnauthorized = errors.New("unauthorized")
)

func (k Kind) sentinel() error {
	switch k {
	case KindCrypto:
		return ErrCrypto
	case KindDecrypt:
		return ErrDecrypt
	case KindRejected:
		return ErrRejected
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every Engine operation.
//
// A rejection reports only the operation in Error(). The failing sub-check
// is available from Reason for server side logging and must not be sent
// back to a client.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	reason string
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Kind != KindRejected && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause. Rejections hide it.
func (e *Error) Unwrap() error {
	if e.Kind == KindRejected {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Reason describes why the operation failed, including causes hidden by
// Error.
func (e *Error) Reason() string {
	switch {
	case e.reason != "" && e.Err != nil:
		return e.reason + ": " + e.Err.Error()
	case e.reason != "":
		return e.reason
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ReasonOf returns the log reason for err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func cryptoErr(op string, err error) error {
	return &Error{Kind: KindCrypto, Op: op, Err: err}
}

func decryptErr(op string, err error) error {
	return &Error{Kind: KindDecrypt, Op: op, Err: err}
}

func reject(op, reason string, err error) error {
	return &Error{Kind: KindRejected, Op: op, Err: err, reason: reason}
}

// withOp renames the operation of an *Error and reports any other error
// as a decrypt failure.
func withOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, Err: e.Err, reason: e.reason}
	}
	return decryptErr(op, err)
}
