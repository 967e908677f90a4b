// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package affinity

import (
	"runtime"
	"testing"

	"github.com/momentics/hioload-ring/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedAndSpread(t *testing.T) {
	cpus, err := Allowed()
	require.NoError(t, err)
	require.NotEmpty(t, cpus)
	assert.Equal(t, cpus[0], Spread(cpus, len(cpus)))
	assert.Zero(t, Spread(nil, 3))
}

func TestPin(t *testing.T) {
	_, err := Pin(-1)
	assert.Equal(t, api.StatusInvalidArgument, api.StatusOf(err))

	cpus, err := Allowed()
	require.NoError(t, err)
	unpin, err := Pin(cpus[len(cpus)-1])
	if runtime.GOOS != "linux" {
		assert.Equal(t, api.StatusUnsupported, api.StatusOf(err))
		return
	}
	require.NoError(t, err)
	pinned, err := Allowed()
	require.NoError(t, err)
	assert.Equal(t, []int{cpus[len(cpus)-1]}, pinned)
	unpin()

	restored, err := Allowed()
	require.NoError(t, err)
	assert.Equal(t, cpus, restored)
}
