package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreEncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)

	s, err := Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)

	_, ok, err := s.GetString("nado_private_key")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetString("nado_private_key", "0xdeadbeef"))
	require.NoError(t, s.SetString("empty", ""))

	v, ok, err := s.GetString(" nado_private_key ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0xdeadbeef", v)

	v, ok, err = s.GetString("empty")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, v)

	keys, err := s.Keys()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"nado_private_key", "empty"}, keys)

	require.NoError(t, s.Delete("empty"))
	require.NoError(t, s.Close())

	// 重新打开（同一加密密钥）
	s, err = Open(OpenOptions{Path: dir, EncryptionKey: key, ReadOnly: true})
	require.NoError(t, err)
	defer s.Close()
	v, ok, err = s.GetString("nado_private_key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0xdeadbeef", v)
	_, ok, err = s.GetString("empty")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFirst(t *testing.T) {
	s, err := Open(OpenOptions{Path: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetString(PrivateKeyName, "  "))
	require.NoError(t, s.SetString(MnemonicName, "test words"))

	name, v, err := s.First(PrivateKeyName, MnemonicName)
	require.NoError(t, err)
	require.Equal(t, MnemonicName, name)
	require.Equal(t, "test words", v)

	_, _, err = s.First("absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	b, err := ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, b)

	b, err = ParseKey("0x" + strings.Repeat("0f", 32))
	require.NoError(t, err)
	require.Len(t, b, 32)

	_, err = ParseKey("0x0f0f")
	require.Error(t, err)

	b, err = ParseKey("")
	require.NoError(t, err)
	require.Nil(t, b)

	var nilStore *Store
	_, _, err = nilStore.GetString("k")
	require.ErrorIs(t, err, ErrNotOpened)
}
