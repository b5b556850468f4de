package core

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathErrorMatchesKindAndCause(t *testing.T) {
	err := NewPathError(ErrLoad, "/in/a.stl", fs.ErrNotExist)

	require.ErrorIs(t, err, ErrLoad)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.NotErrorIs(t, err, ErrWrite)
	require.Equal(t, "load error: /in/a.stl: file does not exist", err.Error())

	var pe *PathError
	require.True(t, errors.As(error(err), &pe))
	require.Equal(t, "/in/a.stl", pe.Path)
}

func TestPathErrorWithoutCause(t *testing.T) {
	err := &PathError{Kind: ErrIO, Path: "/out/a"}
	require.ErrorIs(t, err, ErrIO)
	require.Equal(t, "io error: /out/a", err.Error())
}

func TestKind(t *testing.T) {
	for idx, tc := range []struct {
		err  error
		kind error
	}{
		{Configurationf("ratio %v", 2), ErrConfiguration},
		{NewPathError(ErrDecimation, "x", errors.New("boom")), ErrDecimation},
		{NewPathError(ErrWrite, "x", nil), ErrWrite},
		{errors.New("plain"), nil},
		{nil, nil},
	} {
		require.Equal(t, tc.kind, Kind(tc.err), "%d", idx)
	}
}

func TestConfigurationf(t *testing.T) {
	err := Configurationf("input directory %q is not a directory", "/tmp/x")
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), `"/tmp/x" is not a directory`)
}
