package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Settings{FailureThreshold: 2, Timeout: time.Minute})

	assert.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Settings{FailureThreshold: 2, Timeout: time.Minute})

	_ = b.Execute(func() error { return errBoom })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return errBoom })
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	var transitions []string
	b := New(Settings{
		Name:             "embedding",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	require.Equal(t, Open, b.State())

	now = now.Add(11 * time.Second)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []string{
		"embedding:Closed->Open",
		"embedding:Open->Half-Open",
		"embedding:Half-Open->Closed",
	}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := New(Settings{FailureThreshold: 1, Timeout: time.Second})
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errBoom })
	assert.Equal(t, Open, b.State())
}

func TestIsSuccessfulIgnoresSelectedErrors(t *testing.T) {
	errBadRequest := errors.New("bad request")
	b := New(Settings{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		IsSuccessful:     func(err error) bool { return err == nil || errors.Is(err, errBadRequest) },
	})

	assert.ErrorIs(t, b.Execute(func() error { return errBadRequest }), errBadRequest)
	assert.Equal(t, Closed, b.State())
}

func TestDoReturnsValue(t *testing.T) {
	b := New(Settings{FailureThreshold: 1, Timeout: time.Minute})
	v, err := Do(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Do[int](nil, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
