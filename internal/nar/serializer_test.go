package nar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-/nyarr/internal/vfs"
)

func TestStringPadding(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want []byte
	}{
		{
			"empty",
			[]byte{},
			[]byte{0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			"short",
			[]byte{0x10, 0x12},
			[]byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0x10, 0x12, 0, 0, 0, 0, 0, 0},
		},
		{
			"exact8",
			[]byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17},
			[]byte{0x08, 0, 0, 0, 0, 0, 0, 0, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, str(&buf, c.in))
			assert.Equal(t, c.want, buf.Bytes())
			assert.Zero(t, buf.Len()%8)
		})
	}
}

func basicTree() *vfs.FsObject {
	root := vfs.NewDir()
	root.Insert(vfs.SingletonPath([]byte("dire")), vfs.NewDirectory())
	root.Insert(vfs.SingletonPath([]byte("f")), vfs.NewFile(vfs.NotExecutable, vfs.Bytes("aaa\n")))
	root.Insert(vfs.SingletonPath([]byte("f2")), vfs.NewSymlink(vfs.SingletonPath([]byte("f"))))
	return &vfs.FsObject{Kind: vfs.KindDirectory, Dir: root}
}

func TestBasicTreeEntryOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, basicTree()))

	data := buf.Bytes()
	// Each entry name is preceded by the 8-byte-aligned "name" string; find
	// each entry name's offset following the literal marker to fix order.
	nameMarker := func() []byte {
		var b bytes.Buffer
		_ = str(&b, []byte("name"))
		return b.Bytes()
	}()

	offsetOf := func(entryName string) int {
		var b bytes.Buffer
		_ = str(&b, []byte(entryName))
		needle := append(append([]byte{}, nameMarker...), b.Bytes()...)
		return bytes.Index(data, needle)
	}

	iDire, iF, iF2 := offsetOf("dire"), offsetOf("f"), offsetOf("f2")
	require.GreaterOrEqual(t, iDire, 0)
	require.GreaterOrEqual(t, iF, 0)
	require.GreaterOrEqual(t, iF2, 0)
	assert.Less(t, iDire, iF)
	assert.Less(t, iF, iF2)
}

func TestUnorderedConstructionIsDeterministic(t *testing.T) {
	ordered := vfs.NewDir()
	ordered.Insert(vfs.SingletonPath([]byte("dire")), vfs.NewDirectory())
	ordered.Insert(vfs.SingletonPath([]byte("f")), vfs.NewFile(vfs.NotExecutable, vfs.Bytes("aaa\n")))
	ordered.Insert(vfs.SingletonPath([]byte("f2")), vfs.NewSymlink(vfs.SingletonPath([]byte("f"))))

	unordered := vfs.NewDir()
	unordered.Insert(vfs.SingletonPath([]byte("f")), vfs.NewFile(vfs.NotExecutable, vfs.Bytes("aaa\n")))
	unordered.Insert(vfs.SingletonPath([]byte("dire")), vfs.NewDirectory())
	unordered.Insert(vfs.SingletonPath([]byte("f2")), vfs.NewSymlink(vfs.SingletonPath([]byte("f"))))

	var bufA, bufB bytes.Buffer
	require.NoError(t, Write(&bufA, &vfs.FsObject{Kind: vfs.KindDirectory, Dir: ordered}))
	require.NoError(t, Write(&bufB, &vfs.FsObject{Kind: vfs.KindDirectory, Dir: unordered}))

	assert.Equal(t, bufA.Bytes(), bufB.Bytes())
}

func TestSerializeIsDeterministic(t *testing.T) {
	tree := basicTree()

	var bufA, bufB bytes.Buffer
	require.NoError(t, Write(&bufA, tree))
	require.NoError(t, Write(&bufB, tree))

	assert.Equal(t, bufA.Bytes(), bufB.Bytes())
}

func TestExecutableEmitsTrailingEmptyString(t *testing.T) {
	file := vfs.NewFile(vfs.IsExecutable, vfs.Bytes("#!/bin/sh\n"))

	var buf bytes.Buffer
	require.NoError(t, writeOne(&buf, file))

	// "executable" string, then an explicit empty string, then "contents".
	want := []byte{}
	want = appendStr(want, []byte("type"))
	want = appendStr(want, []byte("regular"))
	want = appendStr(want, []byte("executable"))
	want = appendStr(want, []byte(""))
	want = appendStr(want, []byte("contents"))
	want = appendStr(want, []byte("#!/bin/sh\n"))

	assert.Equal(t, want, buf.Bytes())
}

func appendStr(dst []byte, s []byte) []byte {
	var buf bytes.Buffer
	_ = str(&buf, s)
	return append(dst, buf.Bytes()...)
}

func TestAllLengthsDivisibleByEight(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, basicTree()))
	assert.Zero(t, buf.Len()%8)
}

func TestHasherDigestIsSri(t *testing.T) {
	h := NewHasher()
	require.NoError(t, Write(h, basicTree()))
	digest := h.Digest()
	assert.Regexp(t, `^sha256-[A-Za-z0-9+/]+=*$`, digest)
}

func TestHasherDeterministic(t *testing.T) {
	h1 := NewHasher()
	require.NoError(t, Write(h1, basicTree()))

	h2 := NewHasher()
	require.NoError(t, Write(h2, basicTree()))

	assert.Equal(t, h1.Digest(), h2.Digest())
}
