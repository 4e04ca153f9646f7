package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNoIdentity = errors.New("no authenticated identity in request")

// Provider resolves the calling user. The scheduling core treats a
// missing or failed identity as a not-authenticated error and aborts
// the operation; session management itself lives with the external
// auth collaborator.
type Provider interface {
	CurrentUserID(ctx context.Context) (uuid.UUID, error)
}

type ctxKey struct{}

// WithUserID stamps the resolved user onto the context. Called by the
// transport layer once per request after the auth collaborator has
// vouched for the caller.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ContextProvider reads the identity stamped by the transport layer.
type ContextProvider struct{}

func (ContextProvider) CurrentUserID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoIdentity
	}
	return id, nil
}

// StaticProvider always returns the same user. Handy in tests that
// need an authenticated caller without the transport layer.
type StaticProvider struct {
	ID uuid.UUID
}

func (p StaticProvider) CurrentUserID(context.Context) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		return uuid.Nil, ErrNoIdentity
	}
	return p.ID, nil
}
