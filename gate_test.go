package imagefront_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantari/imagefront"
)

func newTestGate(t *testing.T, opts ...imagefront.GateOption) (*imagefront.Gate, *imagefront.Pool, *imagefront.Pool) {
	t.Helper()
	keys, _ := newTestPool(t, imagefront.WithIDPrefix("sk"))
	tokens, _ := newTestPool(t, imagefront.WithIDPrefix("tok"))
	return imagefront.NewGate(keys, tokens, opts...), keys, tokens
}

func TestAuthorize_OpenAccessWhenNoKeysConfigured(t *testing.T) {
	g, _, _ := newTestGate(t)

	client, err := g.Authorize(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, client, "empty key pool with no static key admits everyone")
}

func TestAuthorize_StaticKeyMode(t *testing.T) {
	g, _, _ := newTestGate(t, imagefront.WithStaticKey("master-secret"))
	ctx := context.Background()

	client, err := g.Authorize(ctx, "master-secret")
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = g.Authorize(ctx, "wrong")
	assert.ErrorIs(t, err, imagefront.ErrUnauthorized)
	assert.True(t, imagefront.IsAuthFailure(err))
}

func TestAuthorize_StaticKeyIgnoredOncePoolPopulated(t *testing.T) {
	g, keys, _ := newTestGate(t, imagefront.WithStaticKey("master-secret"))
	ctx := context.Background()

	c, err := keys.Create(ctx, imagefront.CreateParams{DisplayName: "team"})
	require.NoError(t, err)

	_, err = g.Authorize(ctx, "master-secret")
	assert.ErrorIs(t, err, imagefront.ErrUnauthorized,
		"per-key auth takes over once keys exist")

	client, err := g.Authorize(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, c.ID, client.ID)
}

func TestAuthorize_QuotaFailureIsNotAuthFailure(t *testing.T) {
	g, keys, _ := newTestGate(t)
	ctx := context.Background()

	c, err := keys.Create(ctx, imagefront.CreateParams{
		DisplayName: "capped", DailyLimit: int64Ptr(0),
	})
	require.NoError(t, err)

	_, err = g.Authorize(ctx, c.ID)
	assert.ErrorIs(t, err, imagefront.ErrQuotaExceeded)
	assert.False(t, imagefront.IsAuthFailure(err), "known key over quota is 429 territory, not 401")
	assert.True(t, imagefront.IsRateLimited(err))
}

func TestAuthorize_MissingBearer(t *testing.T) {
	g, keys, _ := newTestGate(t)
	ctx := context.Background()

	_, err := keys.Create(ctx, imagefront.CreateParams{DisplayName: "team"})
	require.NoError(t, err)

	_, err = g.Authorize(ctx, "")
	assert.ErrorIs(t, err, imagefront.ErrUnauthorized)
}

func TestUpstreamFor_DedicatedSubPool(t *testing.T) {
	g, keys, tokens := newTestGate(t)
	ctx := context.Background()

	_, err := tokens.Adopt(ctx, "tok-shared-000000", imagefront.CreateParams{})
	require.NoError(t, err)
	dedicated, err := tokens.Adopt(ctx, "tok-dedicated-111111", imagefront.CreateParams{})
	require.NoError(t, err)

	key, err := keys.Create(ctx, imagefront.CreateParams{
		DisplayName: "vip", BoundCredentials: []string{dedicated.ID},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tok, err := g.UpstreamFor(ctx, &key, nil)
		require.NoError(t, err)
		assert.Equal(t, dedicated.ID, tok.ID)
	}
}

func TestUpstreamFor_StaleBoundIdsExhaustPool(t *testing.T) {
	g, keys, tokens := newTestGate(t)
	ctx := context.Background()

	_, err := tokens.Adopt(ctx, "tok-shared-000000", imagefront.CreateParams{})
	require.NoError(t, err)

	// The bound token was deleted after binding; the sub-pool is configured
	// but unusable, which is exhaustion rather than an unconfigured pool.
	key, err := keys.Create(ctx, imagefront.CreateParams{
		DisplayName: "orphaned", BoundCredentials: []string{"tok-deleted-999999"},
	})
	require.NoError(t, err)

	_, err = g.UpstreamFor(ctx, &key, nil)
	assert.ErrorIs(t, err, imagefront.ErrPoolExhausted)
	assert.True(t, imagefront.IsRateLimited(err))
}

func TestUpstreamFor_SkipFilterChargesNothing(t *testing.T) {
	g, _, tokens := newTestGate(t)
	ctx := context.Background()

	sidelined, err := tokens.Adopt(ctx, "tok-sidelined-000001", imagefront.CreateParams{})
	require.NoError(t, err)

	skip := func(id string) bool { return id == sidelined.ID }
	_, err = g.UpstreamFor(ctx, nil, skip)
	assert.ErrorIs(t, err, imagefront.ErrPoolExhausted)

	got, err := tokens.Get(ctx, sidelined.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Usage.Total, "a skipped credential is never charged")
}

func TestUpstreamFor_SharedPoolWithoutBinding(t *testing.T) {
	g, _, tokens := newTestGate(t)
	ctx := context.Background()

	shared, err := tokens.Adopt(ctx, "tok-shared-000000", imagefront.CreateParams{})
	require.NoError(t, err)

	tok, err := g.UpstreamFor(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, shared.ID, tok.ID)
}

func TestRecordClientUsage_NilClientIsNoop(t *testing.T) {
	g, _, _ := newTestGate(t)
	assert.NoError(t, g.RecordClientUsage(context.Background(), nil))
}

func TestRecordClientUsage_CountsAgainstKey(t *testing.T) {
	g, keys, _ := newTestGate(t)
	ctx := context.Background()

	c, err := keys.Create(ctx, imagefront.CreateParams{DisplayName: "team"})
	require.NoError(t, err)

	require.NoError(t, g.RecordClientUsage(ctx, &c))

	got, err := keys.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Usage.Daily)
}
