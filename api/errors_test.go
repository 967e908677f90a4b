// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package api_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/momentics/hioload-ring/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusValues(t *testing.T) {
	assert.Equal(t, 2, int(api.StatusWouldBlock))
	assert.Equal(t, 49, int(api.StatusUnsupportedSpace))
	assert.Equal(t, "operation would block", api.StatusWouldBlock.String())
	assert.Equal(t, "unknown status 7", api.Status(7).String())
	assert.False(t, api.StatusWouldBlock.Failed())
	assert.False(t, api.StatusEndOfData.Failed())
	assert.True(t, api.StatusMemOpFailed.Failed())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, api.StatusSuccess, api.StatusOf(nil))
	assert.Equal(t, api.StatusInternalError, api.StatusOf(fmt.Errorf("plain")))

	e := api.NewError(api.StatusInvalidState, "ring.Reserve", "pending")
	assert.Equal(t, api.StatusInvalidState, api.StatusOf(e))
	assert.Equal(t, api.StatusInvalidState, api.StatusOf(errors.Wrap(e, "outer")))
	assert.True(t, api.IsWouldBlock(api.NewError(api.StatusWouldBlock, "", "")))
}

func TestErrorMatching(t *testing.T) {
	e := api.Errorf(api.StatusWouldBlock, "ring.Reserve", "blocked at %d", 10)
	assert.ErrorIs(t, e, api.ErrWouldBlock)
	assert.NotErrorIs(t, e, api.ErrInvalidState)
	assert.Equal(t, "ring.Reserve: operation would block: blocked at 10", e.Error())
	assert.Contains(t, fmt.Sprintf("%+v", e), "errors_test.go")

	w := api.Wrap(context.Canceled, api.StatusWouldBlock, "ring.ReserveWait")
	assert.ErrorIs(t, w, context.Canceled)
	assert.ErrorIs(t, w, api.ErrWouldBlock)
	assert.Equal(t, "ring.ReserveWait: operation would block: context canceled", w.Error())

	n := api.Wrap(nil, api.StatusInternalError, "op")
	require.NotNil(t, n)
	assert.Nil(t, n.Unwrap())

	c := api.NewError(api.StatusInvalidArgument, "op", "bad").WithContext("size", 3)
	assert.Equal(t, "op: invalid argument: bad (context: map[size:3])", c.Error())
}

func TestSpaces(t *testing.T) {
	for _, s := range []api.Space{api.SpaceAuto, api.SpaceSystem, api.SpaceDevice, api.SpacePinnedHost, api.SpaceManaged, api.SpaceShared} {
		parsed, err := api.ParseSpace(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := api.ParseSpace("gpu")
	assert.Equal(t, api.StatusInvalidSpace, api.StatusOf(err))

	assert.False(t, api.SpaceAuto.Concrete())
	assert.True(t, api.SpaceShared.Concrete())
	assert.False(t, api.Space(9).Valid())
	assert.Equal(t, "space(9)", api.Space(9).String())
	assert.True(t, api.SpacePinnedHost.HostAccessible())
	assert.False(t, api.SpaceManaged.HostAccessible())
	assert.Nil(t, api.HostPtr(nil))
}
