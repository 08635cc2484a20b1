// Package signing implements signing boxes: capabilities that expose a public
// key and sign bytes without revealing the secret. A box is either backed by
// local keys or delegated to the embedding host, whose asynchronous answers
// arrive through a Future.
package signing

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"debotbrowser/pkg/crypto"
)

// ErrorCode is the code reported for every signing box failure.
const ErrorCode = 0

var ErrUnknownHandle = errors.New("unknown signing box handle")

// Error is a failed signing box operation.
type Error struct {
	Code    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type SigningBox interface {
	PublicKey(ctx context.Context) ([]byte, error)
	Sign(ctx context.Context, unsigned []byte) ([]byte, error)
}

// Host is the embedder side of a delegated signing box. Both calls resolve
// with hex-encoded bytes.
type Host interface {
	GetPublicKey(ctx context.Context) *Future
	Sign(ctx context.Context, unsigned []byte) *Future
}

// HostBox is a SigningBox that forwards to a Host.
type HostBox struct {
	host Host
}

func NewHostBox(host Host) *HostBox {
	return &HostBox{host: host}
}

func (b *HostBox) PublicKey(ctx context.Context) ([]byte, error) {
	return awaitHex(ctx, b.host.GetPublicKey(ctx), "failed to get public key")
}

func (b *HostBox) Sign(ctx context.Context, unsigned []byte) ([]byte, error) {
	return awaitHex(ctx, b.host.Sign(ctx, unsigned), "failed to sign")
}

func awaitHex(ctx context.Context, f *Future, failure string) ([]byte, error) {
	value, err := f.Wait(ctx)
	if err != nil {
		return nil, &Error{Code: ErrorCode, Message: failure, Cause: err}
	}

	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, &Error{Code: ErrorCode, Message: "failed to decode string to bytes", Cause: err}
	}
	return decoded, nil
}

// KeyBox signs with a local key pair.
type KeyBox struct {
	keys crypto.KeyPair
}

func NewKeyBox(keys crypto.KeyPair) (*KeyBox, error) {
	if _, err := keys.PublicKey(); err != nil {
		return nil, err
	}
	return &KeyBox{keys: keys}, nil
}

func (b *KeyBox) PublicKey(context.Context) ([]byte, error) {
	return b.keys.PublicKey()
}

func (b *KeyBox) Sign(_ context.Context, unsigned []byte) ([]byte, error) {
	return b.keys.SignDetached(unsigned)
}

// Registry hands out numeric handles for signing boxes. Handles start at 1
// and are never reused.
type Registry struct {
	mu    sync.RWMutex
	next  uint32
	boxes map[uint32]SigningBox
}

func NewRegistry() *Registry {
	return &Registry{boxes: make(map[uint32]SigningBox)}
}

func (r *Registry) Register(box SigningBox) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.boxes[r.next] = box
	return r.next
}

func (r *Registry) Get(handle uint32) (SigningBox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	box, ok := r.boxes[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	return box, nil
}

func (r *Registry) Remove(handle uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.boxes[handle]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	delete(r.boxes, handle)
	return nil
}

// PublicKey returns the hex public key of the box registered under handle.
func (r *Registry) PublicKey(ctx context.Context, handle uint32) (string, error) {
	box, err := r.Get(handle)
	if err != nil {
		return "", err
	}
	key, err := box.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Sign signs unsigned with the box registered under handle.
func (r *Registry) Sign(ctx context.Context, handle uint32, unsigned []byte) ([]byte, error) {
	box, err := r.Get(handle)
	if err != nil {
		return nil, err
	}
	return box.Sign(ctx, unsigned)
}
