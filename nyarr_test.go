package nyarr

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests exercising the full tar -> VFS -> NAR -> digest
// pipeline described in spec §2's data flow.

func buildBasicTar(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dire/", Mode: 0o755, Typeflag: tar.TypeDir}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "f", Mode: 0o644, Size: 4, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("aaa\n"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "f2", Mode: 0o777, Typeflag: tar.TypeSymlink, Linkname: "f"}))
	require.NoError(t, tw.Close())

	return buf.Bytes()
}

func TestTarToNarRoundTrip(t *testing.T) {
	data := buildBasicTar(t)

	var nar1, nar2 bytes.Buffer
	require.NoError(t, TarToNar(bytes.NewReader(data), &nar1, DontStripRoot))
	require.NoError(t, TarToNar(bytes.NewReader(data), &nar2, DontStripRoot))

	assert.Equal(t, nar1.Bytes(), nar2.Bytes())
	assert.Zero(t, nar1.Len()%8)
	assert.True(t, bytes.HasPrefix(nar1.Bytes()[8:], []byte("nix-archive-1")))
}

func TestDigestDeterministic(t *testing.T) {
	data := buildBasicTar(t)

	h1 := NewHasher()
	require.NoError(t, TarToNar(bytes.NewReader(data), h1, DontStripRoot))

	h2 := NewHasher()
	require.NoError(t, TarToNar(bytes.NewReader(data), h2, DontStripRoot))

	assert.Equal(t, h1.Digest(), h2.Digest())
	assert.Regexp(t, `^sha256-`, h1.Digest())
}

func TestDigestDistinguishesTrees(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "f", Mode: 0o644, Size: 4, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("bbb\n"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	basic := buildBasicTar(t)

	h1 := NewHasher()
	require.NoError(t, TarToNar(bytes.NewReader(basic), h1, DontStripRoot))

	h2 := NewHasher()
	require.NoError(t, TarToNar(bytes.NewReader(buf.Bytes()), h2, DontStripRoot))

	assert.NotEqual(t, h1.Digest(), h2.Digest())
}

func TestTarToFsObjectAlwaysWrapsInDirectory(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "lonely.txt", Mode: 0o644, Size: 5, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	fso, err := TarToFsObject(bytes.NewReader(buf.Bytes()), DontStripRoot)
	require.NoError(t, err)
	require.NotNilf(t, fso.Dir, "expected a wrapping directory, got:\n%s", spew.Sdump(fso))
	assert.NotNil(t, fso.Dir.Get([]byte("lonely.txt")))
}
