package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/data/repository"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnReset = errors.New("connection reset")

type fakeRemote struct {
	value     decimal.Decimal
	getErr    error
	updateErr error
	getCalls  int
	updates   []decimal.Decimal
}

func (r *fakeRemote) GetInitialCapital(ctx context.Context) (decimal.Decimal, error) {
	r.getCalls++
	if r.getErr != nil {
		return decimal.Zero, r.getErr
	}
	return r.value, nil
}

func (r *fakeRemote) UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, amount)
	r.value = amount
	return nil
}

type fakeFallback struct {
	value   decimal.Decimal
	pending bool
	saves   []decimal.Decimal
	cleared bool
}

func (f *fakeFallback) InitialCapital() (decimal.Decimal, bool, error) {
	return f.value, f.pending, nil
}

func (f *fakeFallback) SaveInitialCapital(amount decimal.Decimal) error {
	f.value = amount
	f.pending = true
	f.saves = append(f.saves, amount)
	return nil
}

func (f *fakeFallback) Clear() error {
	f.pending = false
	f.cleared = true
	return nil
}

func newService(remote *fakeRemote, fallback *fakeFallback) *Service {
	return New(remote, fallback, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)
}

func TestInitialCapitalReadsRemote(t *testing.T) {
	remote := &fakeRemote{value: decimal.NewFromInt(5000)}
	fallback := &fakeFallback{}

	got, err := newService(remote, fallback).InitialCapital(context.Background())

	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5000)))
}

func TestInitialCapitalNotFoundMeansZero(t *testing.T) {
	remote := &fakeRemote{getErr: repository.ErrNotFound}
	fallback := &fakeFallback{}

	got, err := newService(remote, fallback).InitialCapital(context.Background())

	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.Equal(t, 1, remote.getCalls, "not-found is permanent, no retries")
}

func TestInitialCapitalUnreachableUsesPendingFallback(t *testing.T) {
	remote := &fakeRemote{getErr: errConnReset}
	fallback := &fakeFallback{value: decimal.NewFromInt(3000), pending: true}

	got, err := newService(remote, fallback).InitialCapital(context.Background())

	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, 3, remote.getCalls, "transient failures exhaust the retry budget first")
}

func TestInitialCapitalUnreachableWithoutFallbackErrors(t *testing.T) {
	remote := &fakeRemote{getErr: errConnReset}
	fallback := &fakeFallback{}

	_, err := newService(remote, fallback).InitialCapital(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errConnReset)
}

func TestInitialCapitalReconcilesPendingValue(t *testing.T) {
	remote := &fakeRemote{value: decimal.NewFromInt(5000)}
	fallback := &fakeFallback{value: decimal.NewFromInt(7000), pending: true}

	got, err := newService(remote, fallback).InitialCapital(context.Background())

	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(7000)), "pending local value wins over remote")
	require.Len(t, remote.updates, 1)
	assert.True(t, remote.updates[0].Equal(decimal.NewFromInt(7000)))
	assert.True(t, fallback.cleared)
}

func TestUpdateInitialCapitalWritesRemoteAndClearsFallback(t *testing.T) {
	remote := &fakeRemote{}
	fallback := &fakeFallback{value: decimal.NewFromInt(1), pending: true}

	err := newService(remote, fallback).UpdateInitialCapital(context.Background(), decimal.NewFromInt(9000))

	require.NoError(t, err)
	require.Len(t, remote.updates, 1)
	assert.True(t, remote.updates[0].Equal(decimal.NewFromInt(9000)))
	assert.True(t, fallback.cleared)
}

func TestUpdateInitialCapitalDegradesToFallback(t *testing.T) {
	remote := &fakeRemote{updateErr: errConnReset}
	fallback := &fakeFallback{}

	err := newService(remote, fallback).UpdateInitialCapital(context.Background(), decimal.NewFromInt(9000))

	require.NoError(t, err, "a locally persisted value is a success from the caller's view")
	require.Len(t, fallback.saves, 1)
	assert.True(t, fallback.saves[0].Equal(decimal.NewFromInt(9000)))
	assert.True(t, fallback.pending)
}

func TestUpdateInitialCapitalPermanentErrorPropagates(t *testing.T) {
	remote := &fakeRemote{updateErr: repository.ErrAuthorizationDenied}
	fallback := &fakeFallback{}

	err := newService(remote, fallback).UpdateInitialCapital(context.Background(), decimal.NewFromInt(9000))

	assert.ErrorIs(t, err, repository.ErrAuthorizationDenied)
	assert.Empty(t, fallback.saves, "permanent failures never park a local value")
}

func TestOfflineShortCircuitsToFallback(t *testing.T) {
	remote := &fakeRemote{value: decimal.NewFromInt(5000)}
	fallback := &fakeFallback{value: decimal.NewFromInt(2500), pending: true}
	svc := New(remote, fallback, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, func() bool { return true })

	got, err := svc.InitialCapital(context.Background())

	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2500)))
	assert.Zero(t, remote.getCalls)
}
