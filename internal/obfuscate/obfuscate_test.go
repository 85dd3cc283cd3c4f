package obfuscate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ArchiveKey(`Authored\UI\A.sif0`), ArchiveKey(`authored\ui\a.sif0`))
	assert.NotEqual(t, ArchiveKey("a"), ArchiveKey("b"))
}

func TestKeyFolding(t *testing.T) {
	t.Parallel()

	want := ArchiveSeed
	want = want*33 + uint32('a')
	want = want*33 + uint32('b')
	assert.Equal(t, want, Key(ArchiveSeed, "AB"))
	assert.Equal(t, ArchiveSeed, Key(ArchiveSeed, ""))
}

func TestKeySignExtendsHighBytes(t *testing.T) {
	t.Parallel()

	// 0xE9 is -23 as a signed char, so it adds 0xFFFFFFE9.
	want := ArchiveSeed
	want = want*33 + 0xFFFFFFE9
	assert.Equal(t, want, Key(ArchiveSeed, "\xe9"))

	// High bytes are not case folded.
	assert.NotEqual(t, Key(ArchiveSeed, "\xc9"), Key(ArchiveSeed, "\xe9"))
	assert.Equal(t, ArchiveKey("Authored\\Caf\xc3\xa9.json"), ArchiveKey("authored\\caf\xc3\xa9.JSON"))
}

func TestApplyIsInvolution(t *testing.T) {
	t.Parallel()

	orig := []byte("the quick brown fox jumps over the lazy dog")
	buf := append([]byte(nil), orig...)
	key := ArchiveKey("some/file.json")

	Apply(buf, key, 0)
	assert.NotEqual(t, orig, buf)
	Apply(buf, key, 0)
	assert.Equal(t, orig, buf)
}

func TestApplyMatchesFormula(t *testing.T) {
	t.Parallel()

	key := uint32(0x11223344)
	buf := make([]byte, 9)
	Apply(buf, key, 0)
	for i := range buf {
		want := byte((key >> ((uint32(i) % 4) << 3)) + uint32(i/4)*101)
		assert.Equal(t, want, buf[i], "byte %d", i)
	}
}

func TestApplyWithOffset(t *testing.T) {
	t.Parallel()

	key := ArchiveKey("x")
	whole := make([]byte, 16)
	Apply(whole, key, 0)

	part := make([]byte, 6)
	Apply(part, key, 10)
	assert.Equal(t, whole[10:], part)
}

func TestTableAndFileKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key(ArchiveSeed, "112345"), TableKey(1, 12345))
	assert.Equal(t, Key(ArchiveSeed, "10"), TableKey(1, 0))
	assert.Equal(t, Key(ScriptSeed, "main"), FileKey(ScriptSeed, `Authored\Scripts\Main.lua`))
}
