package fs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamei(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "c1"), 0o755))
	f := NewHostFS(root)

	ip, err := f.Namei("/c1")
	require.NoError(t, err)
	assert.Equal(t, "/c1", ip.Path)
	assert.Equal(t, 1, f.Refs(ip))

	f.Idup(ip)
	assert.Equal(t, 2, f.Refs(ip))
	f.Iput(ip)
	f.Iput(ip)
	assert.Panics(t, func() { f.Iput(ip) })

	_, err = f.Namei("/missing")
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestHostPathStaysInRoot(t *testing.T) {
	f := NewHostFS("/srv/disk")
	assert.Equal(t, "/srv/disk/etc", f.HostPath("../../etc"))
	assert.Equal(t, "/srv/disk/c1/bin", f.HostPath("c1/bin"))
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	f := NewHostFS(t.TempDir(), &out)

	fl, err := f.OpenConsole(0)
	require.NoError(t, err)
	f.Filedup(fl)
	_, err = f.Write(fl, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", out.String())

	f.Fileclose(fl)
	f.Fileclose(fl)
	_, err = f.Write(fl, []byte("x"))
	assert.Error(t, err)

	_, err = f.OpenConsole(1)
	assert.True(t, errors.Is(err, ErrNoConsole))
}
