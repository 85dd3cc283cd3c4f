package sar

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
)

type testFile struct {
	name string
	data []byte
}

func testFiles() []testFile {
	return []testFile{
		{name: `Config\Game.json`, data: []byte(strings.Repeat(`{"key": "value"}`, 64))},
		{name: `Textures\Hero.png`, data: []byte{0x89, 'P', 'N', 'G', 1, 2, 3}},
		{name: `Empty.txt`, data: nil},
		{name: `Scripts\Main.csp`, data: []byte(strings.Repeat("function main() end\n", 40))},
	}
}

func testHeader() Header {
	return Header{
		GameDirectory: assetpath.DirContent,
		Platform:      assetpath.PC,
		VersionMajor:  3,
		Changelist:    12345,
		Variation:     0,
	}
}

func writeArchive(t *testing.T, name string, h Header, files []testFile, opts EncodeOptions) Header {
	t.Helper()
	f, err := os.Create(name)
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWriter(f, h)
	require.NoError(t, err)
	for i, tf := range files {
		_, err := w.Write(Encode(tf.name, tf.data, uint64(1000+i), opts))
		require.NoError(t, err)
	}
	out, err := w.Close()
	require.NoError(t, err)
	return out
}

func newCodec(t *testing.T) *compress.Codec {
	t.Helper()
	c, err := compress.NewCodec(compress.LevelDefault)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	h := Header{
		TotalSize:        4096,
		TableOffset:      4000,
		EntryCount:       7,
		GameDirectory:    assetpath.DirConfig,
		TableCompressed:  true,
		TableSize:        96,
		Variation:        2,
		VersionMajor:     5,
		Changelist:       999,
		DirectoryQueries: true,
		Obfuscated:       true,
		Platform:         assetpath.Android,
	}
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)
	assert.Equal(t, Signature, binary.LittleEndian.Uint32(b))
	assert.Equal(t, Version, binary.LittleEndian.Uint32(b[4:]))

	var got Header
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, h, got)
}

func TestHeaderRejects(t *testing.T) {
	t.Parallel()
	good, err := Header{
		TotalSize:     100,
		TableOffset:   HeaderSize,
		TableSize:     52,
		GameDirectory: assetpath.DirContent,
	}.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(b []byte)
		want   error
	}{
		{"signature", func(b []byte) { b[0] = 0 }, ErrBadSignature},
		{"version", func(b []byte) { b[4] = 20 }, ErrVersionMismatch},
		{"game directory", func(b []byte) { b[28] = byte(assetpath.DirSave) }, ErrCorrupt},
		{"table past end", func(b []byte) { b[32] = 53 }, ErrCorrupt},
		{"table inside header", func(b []byte) { b[16] = 8 }, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := append([]byte(nil), good...)
			tt.mutate(b)
			var h Header
			require.ErrorIs(t, h.UnmarshalBinary(b), tt.want)
		})
	}

	var h Header
	require.ErrorIs(t, h.UnmarshalBinary(good[:10]), ErrCorrupt)
}

func TestWriteRead(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		compressed bool
		obfuscated bool
	}{
		{"stored", false, false},
		{"compressed", true, false},
		{"obfuscated", false, true},
		{"compressed and obfuscated", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			name := filepath.Join(t.TempDir(), "test.sar")
			h := testHeader()
			h.Obfuscated = tt.obfuscated
			opts := EncodeOptions{Obfuscate: tt.obfuscated}
			if tt.compressed {
				opts.Codec = newCodec(t)
			}
			written := writeArchive(t, name, h, testFiles(), opts)

			info, err := os.Stat(name)
			require.NoError(t, err)
			assert.Equal(t, uint64(info.Size()), written.TotalSize)
			assert.Zero(t, written.TableOffset%Alignment)

			r, err := Open(name)
			require.NoError(t, err)
			defer r.Close()

			got := r.Header()
			assert.Equal(t, written, got)
			assert.True(t, got.TableCompressed)
			assert.Equal(t, uint32(len(testFiles())), got.EntryCount)
			require.NoError(t, r.Verify())

			for i, tf := range testFiles() {
				e := r.Entries()[i]
				assert.Equal(t, tf.name, e.Name)
				assert.Equal(t, uint64(1000+i), e.ModTime)
				assert.Zero(t, e.Offset%Alignment)
				assert.Equal(t, uint64(len(tf.data)), e.UncompressedSize)

				data, err := r.Read(e)
				require.NoError(t, err)
				assert.Equal(t, string(tf.data), string(data))

				if !tt.obfuscated && !e.Compressed() {
					assert.Equal(t, e.CRC32Pre, e.CRC32Post)
				}
			}
			if tt.compressed {
				e, ok := r.Lookup(`Config\Game.json`)
				require.True(t, ok)
				assert.True(t, e.Compressed())
				assert.Less(t, e.CompressedSize, e.UncompressedSize)
			}
		})
	}
}

func TestEncodeKeepsSmallerForm(t *testing.T) {
	t.Parallel()
	codec := newCodec(t)

	small := Encode("a.bin", []byte{1, 2, 3}, 0, EncodeOptions{Codec: codec})
	assert.False(t, small.Compressed())
	assert.Equal(t, small.CRC32Pre, small.CRC32Post)
	assert.Equal(t, []byte{1, 2, 3}, small.Data)

	big := Encode("b.bin", bytes.Repeat([]byte("abcd"), 1024), 0, EncodeOptions{Codec: codec})
	assert.True(t, big.Compressed())
	assert.NotEqual(t, big.CRC32Pre, big.CRC32Post)
}

func TestEncodeObfuscateDoesNotTouchInput(t *testing.T) {
	t.Parallel()
	data := []byte("plain text content")
	b := Encode("x.txt", data, 0, EncodeOptions{Obfuscate: true})
	assert.Equal(t, "plain text content", string(data))
	assert.NotEqual(t, data, b.Data)
	assert.NotEqual(t, b.CRC32Pre, b.CRC32Post)
}

func TestLookupIgnoresCaseAndSeparators(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "test.sar")
	writeArchive(t, name, testHeader(), testFiles(), EncodeOptions{})

	r, err := Open(name)
	require.NoError(t, err)
	defer r.Close()

	for _, q := range []string{`Config\Game.json`, "config/game.json", `CONFIG\GAME.JSON`} {
		e, ok := r.Lookup(q)
		require.True(t, ok, q)
		assert.Equal(t, `Config\Game.json`, e.Name)
	}
	_, ok := r.Lookup("missing.json")
	assert.False(t, ok)

	_, err = r.ReadFile("missing.json")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptTable(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "test.sar")
	h := writeArchive(t, name, testHeader(), testFiles(), EncodeOptions{})

	b, err := os.ReadFile(name)
	require.NoError(t, err)
	b[h.TableOffset] ^= 0xFF

	_, err = NewReader(bytes.NewReader(b), int64(len(b)))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestCorruptEntry(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "test.sar")
	writeArchive(t, name, testHeader(), testFiles(), EncodeOptions{})

	b, err := os.ReadFile(name)
	require.NoError(t, err)
	b[HeaderSize] ^= 0xFF

	r, err := NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	require.ErrorIs(t, r.Verify(), ErrCorrupt)
	_, err = r.Read(r.Entries()[0])
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestSizeMismatch(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "test.sar")
	writeArchive(t, name, testHeader(), testFiles(), EncodeOptions{})

	b, err := os.ReadFile(name)
	require.NoError(t, err)
	b = append(b, 0, 0, 0, 0)
	_, err = NewReader(bytes.NewReader(b), int64(len(b)))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestWriterRaisesVersionFields(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "test.sar")
	h := testHeader()
	h.VersionMajor, h.Changelist = 0, 0
	got := writeArchive(t, name, h, nil, EncodeOptions{})
	assert.Equal(t, uint16(1), got.VersionMajor)
	assert.Equal(t, uint32(1), got.Changelist)
	assert.Zero(t, got.EntryCount)

	r, err := Open(name)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, r.Entries())
}

func TestDeterministicOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	opts := EncodeOptions{Codec: newCodec(t), Obfuscate: true}
	h := testHeader()
	h.Obfuscated = true

	a := filepath.Join(dir, "a.sar")
	b := filepath.Join(dir, "b.sar")
	writeArchive(t, a, h, testFiles(), opts)
	writeArchive(t, b, h, testFiles(), opts)

	ab, err := os.ReadFile(a)
	require.NoError(t, err)
	bb, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
}

func TestCopyRawEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	h := testHeader()
	h.Obfuscated = true
	src := filepath.Join(dir, "base.sar")
	writeArchive(t, src, h, testFiles(), EncodeOptions{Codec: newCodec(t), Obfuscate: true})

	base, err := Open(src)
	require.NoError(t, err)
	defer base.Close()

	dst := filepath.Join(dir, "variation.sar")
	f, err := os.Create(dst)
	require.NoError(t, err)
	vh := h
	vh.Variation = 1
	w, err := NewWriter(f, vh)
	require.NoError(t, err)
	for _, e := range base.Entries() {
		raw, err := base.ReadRaw(e)
		require.NoError(t, err)
		_, err = w.Write(Blob{Entry: e, Data: raw})
		require.NoError(t, err)
	}
	_, err = w.Write(Encode("Extra.txt", []byte("override"), 1, EncodeOptions{Obfuscate: true}))
	require.NoError(t, err)
	_, err = w.Close()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := Open(dst)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint16(1), r.Header().Variation)
	require.NoError(t, r.Verify())
	for _, tf := range testFiles() {
		data, err := r.ReadFile(tf.name)
		require.NoError(t, err)
		assert.Equal(t, string(tf.data), string(data))
	}
	data, err := r.ReadFile("extra.txt")
	require.NoError(t, err)
	assert.Equal(t, "override", string(data))
}

func TestWriteRejectsSizeMismatch(t *testing.T) {
	t.Parallel()
	f, err := os.Create(filepath.Join(t.TempDir(), "test.sar"))
	require.NoError(t, err)
	defer f.Close()
	w, err := NewWriter(f, testHeader())
	require.NoError(t, err)

	b := Encode("a.txt", []byte("abc"), 0, EncodeOptions{})
	b.Data = b.Data[:1]
	_, err = w.Write(b)
	require.Error(t, err)
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `a\b\c.json`, NormalizeName("A/B/c.JSON"))
	assert.Equal(t, "pkgcdict_PC.dat", DictionaryName(assetpath.PC))
}
