package hosterr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/hosterr"
)

func TestNew(t *testing.T) {
	err := hosterr.New(hosterr.NotFound, "plugin %q not found", "tasks")
	require.Error(t, err)
	assert.Equal(t, `NotFound: plugin "tasks" not found`, err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := hosterr.Wrap(hosterr.Internal, cause, "writing ledger row")
	require.Error(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "writing ledger row")
}

func TestIs(t *testing.T) {
	err := hosterr.New(hosterr.PermissionDenied, "no")
	assert.True(t, hosterr.Is(err, hosterr.PermissionDenied))
	assert.False(t, hosterr.Is(err, hosterr.NotFound))
	assert.False(t, hosterr.Is(errors.New("plain"), hosterr.NotFound))
}

func TestIsThroughWrapping(t *testing.T) {
	inner := hosterr.New(hosterr.Timeout, "initialize took too long")
	outer := fmt.Errorf("loading plugin %s: %w", "billing", inner)
	assert.True(t, hosterr.Is(outer, hosterr.Timeout))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, hosterr.VersionIncompatible, hosterr.KindOf(hosterr.New(hosterr.VersionIncompatible, "nope")))
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(errors.New("unannotated")))
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(nil))
}
