package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

func TestPicksCap(t *testing.T) {
	var p Picks
	assert.True(t, p.Toggle("a"))
	assert.True(t, p.Toggle("b"))
	assert.False(t, p.Toggle("c"))
	assert.False(t, p.Has("c"))
	assert.Equal(t, 2, p.Len())

	pair, ok := p.Pair()
	require.True(t, ok)
	assert.Equal(t, [2]string{"a", "b"}, pair)

	assert.False(t, p.Toggle("a"))
	_, ok = p.Pair()
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, p.IDs())
}

func TestManualProceed(t *testing.T) {
	saver := &fakeSaver{}
	var got [2]string
	m := NewManual(ManualConfig{Catalog: newCatalog(t), Saver: saver, OnSelected: func(ids [2]string) { got = ids }})

	assert.Len(t, m.View().Careers, 9)
	assert.False(t, m.CanProceed())

	_, err := m.Proceed(context.Background(), testSession)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Toggle("not-a-career")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Toggle("lawyer")
	require.NoError(t, err)
	_, err = m.Toggle("doctor")
	require.NoError(t, err)
	selected, err := m.Toggle("graphic-designer")
	require.NoError(t, err)
	assert.False(t, selected)
	assert.True(t, m.CanProceed())

	saved, err := m.Proceed(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodManual, saved.Method)
	assert.Nil(t, saved.Preferences)
	assert.Equal(t, [2]string{"lawyer", "doctor"}, got)

	_, err = m.Proceed(context.Background(), testSession)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 1, saver.count())
	assert.False(t, m.CanProceed())
}

func TestManualProceedFailureIsRetryable(t *testing.T) {
	saver := &fakeSaver{err: errors.New("locked")}
	m := NewManual(ManualConfig{Catalog: newCatalog(t), Saver: saver})
	_, _ = m.Toggle("lawyer")
	_, _ = m.Toggle("doctor")

	_, err := m.Proceed(context.Background(), testSession)
	require.Error(t, err)
	assert.True(t, m.CanProceed())
	assert.Equal(t, []string{"lawyer", "doctor"}, m.View().Selected)
}

func TestManualBusyDuringSave(t *testing.T) {
	saver := &fakeSaver{gate: make(chan struct{})}
	m := NewManual(ManualConfig{Catalog: newCatalog(t), Saver: saver})
	_, _ = m.Toggle("lawyer")
	_, _ = m.Toggle("doctor")

	done := make(chan error, 1)
	go func() {
		_, err := m.Proceed(context.Background(), testSession)
		done <- err
	}()
	require.Eventually(t, func() bool { return saver.count() == 1 }, testWait, testTick)

	_, err := m.Proceed(context.Background(), testSession)
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = m.Toggle("lawyer")
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(saver.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, saver.count())
}
