package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := Sign(priv, []byte("wait"))
	require.NoError(t, Verify(pub, []byte("wait"), sig))
	require.Error(t, Verify(pub, []byte("act"), sig))
	require.Error(t, Verify(pub, []byte("wait"), sig[:10]))
	require.Error(t, Verify(pub, []byte("wait"), "zz"))
}

func TestKeyHexRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	parsed, err := PubKeyFromHex(pub.Hex())
	require.NoError(t, err)
	require.Equal(t, pub, parsed)
	require.True(t, IsPubKeyHex(pub.Hex()))

	back, err := PrivKeyFromHex(priv.Hex())
	require.NoError(t, err)
	require.Equal(t, pub, back.Public())

	require.False(t, IsPubKeyHex("vault"))
	require.False(t, IsPubKeyHex(strings.Repeat("ab", 31)))
}

func TestDomainHashSeparatesDomains(t *testing.T) {
	require.NotEqual(t, DomainHash("module", []byte("vault")), DomainHash("block", []byte("vault")))
	require.Equal(t, DomainHash("module", []byte("vault")), DomainHash("module", []byte("vault")))
	require.Len(t, Hash(nil), 64)
}
