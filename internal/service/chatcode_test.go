package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func seedPair(t *testing.T, st *store.Memory) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	a, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	b, err := st.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	return a.ID, b.ID
}

func TestIssueAndListChatCodes(t *testing.T) {
	st := store.NewMemory()
	svc := NewChatCodeService(st, st, nopLogger())
	ctx := context.Background()
	alice, _ := seedPair(t, st)

	code, err := svc.Issue(ctx, alice)
	require.NoError(t, err)
	require.GreaterOrEqual(t, code, chatCodeMin)
	require.Less(t, code, chatCodeMax)

	codes, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, code, codes[0].Code)
}

func TestIssueRespectsCap(t *testing.T) {
	st := store.NewMemory()
	svc := NewChatCodeService(st, st, nopLogger())
	ctx := context.Background()
	alice, _ := seedPair(t, st)

	for i := 0; i < model.MaxChatCodesPerUser; i++ {
		_, err := svc.Issue(ctx, alice)
		require.NoError(t, err)
	}
	_, err := svc.Issue(ctx, alice)
	require.ErrorIs(t, err, store.ErrCodeLimit)
}

func TestRedeemCreatesConversation(t *testing.T) {
	st := store.NewMemory()
	svc := NewChatCodeService(st, st, nopLogger())
	ctx := context.Background()
	alice, bob := seedPair(t, st)

	code, err := svc.Issue(ctx, alice)
	require.NoError(t, err)

	conv, err := svc.Redeem(ctx, code, bob)
	require.NoError(t, err)
	require.True(t, conv.HasParticipant(alice))
	require.True(t, conv.HasParticipant(bob))

	// Redemption consumes the code.
	codes, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, codes)

	_, err = svc.Redeem(ctx, code, bob)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedeemOwnCode(t *testing.T) {
	st := store.NewMemory()
	svc := NewChatCodeService(st, st, nopLogger())
	ctx := context.Background()
	alice, _ := seedPair(t, st)

	code, err := svc.Issue(ctx, alice)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, code, alice)
	require.ErrorIs(t, err, ErrSelfRedeem)

	// The code survives the failed redemption.
	codes, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, codes, 1)
}

func TestRedeemExistingPair(t *testing.T) {
	st := store.NewMemory()
	svc := NewChatCodeService(st, st, nopLogger())
	ctx := context.Background()
	alice, bob := seedPair(t, st)

	code, err := svc.Issue(ctx, alice)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, code, bob)
	require.NoError(t, err)

	// A second code between the same pair cannot open a second conversation.
	code2, err := svc.Issue(ctx, alice)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, code2, bob)
	require.ErrorIs(t, err, store.ErrConversationExists)
}

func TestRevokeForeignCode(t *testing.T) {
	st := store.NewMemory()
	svc := NewChatCodeService(st, st, nopLogger())
	ctx := context.Background()
	alice, bob := seedPair(t, st)

	code, err := svc.Issue(ctx, alice)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Revoke(ctx, code, bob), store.ErrNotFound)
	require.NoError(t, svc.Revoke(ctx, code, alice))
}
