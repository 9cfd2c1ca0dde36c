package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSignVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("a line of verse")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, kp.Verify(msg, sig))
}

func TestVerifyRejectsFlippedBit(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("a line of verse")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	sig[0] ^= 0x01
	require.Error(t, kp.Verify(msg, sig))
}

func TestPublicKeyRoundTrip(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	ekp := kp.(*ed25519KeyPair)
	encoded := EncodePublicKey(ekp.RawPublicKey())

	decoded, err := DecodePublicKey(encoded)
	require.NoError(t, err)
	require.Equal(t, ekp.RawPublicKey(), decoded)
}

func TestDecodePublicKeyRejectsMalformed(t *testing.T) {
	_, err := DecodePublicKey("not-base64!!!")
	require.Error(t, err)

	_, err = DecodePublicKey("YWJj") // valid base64, wrong length
	require.Error(t, err)
}

func TestTwoKeyPairsHaveDistinctIDs(t *testing.T) {
	a, err := GenerateEd25519KeyPair()
	require.NoError(t, err)
	b, err := GenerateEd25519KeyPair()
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())
}
