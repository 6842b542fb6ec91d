package relay

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	log := &logger.Logger{Logger: zap.NewNop()}

	a, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	b, err := st.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	outsider, err := st.CreateUser(ctx, "carol", "carol@example.com", "hash")
	require.NoError(t, err)

	conv, err := st.CreateConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)

	gate := NewGate(service.NewConversationService(st, log))

	require.NoError(t, gate.Authorize(ctx, conv.ID, a.ID))
	require.NoError(t, gate.Authorize(ctx, conv.ID, b.ID))

	require.ErrorIs(t, gate.Authorize(ctx, conv.ID, outsider.ID), ErrForbidden)

	// A conversation that does not exist looks exactly like one the caller
	// may not join.
	require.ErrorIs(t, gate.Authorize(ctx, uuid.New(), a.ID), ErrForbidden)
}
