package message

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lineswarm/relay/crypto/keys"
)

func TestNewSignedMessageVerifies(t *testing.T) {
	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	contents := NewMessageContents("a", "the woods are lovely, dark and deep")
	msg, err := NewSignedMessage(kp, contents)
	require.NoError(t, err)

	pub, err := keys.DecodePublicKey(msg.Certificate.Key)
	require.NoError(t, err)

	sig, err := keys.DecodeSignature(msg.Certificate.Signature)
	require.NoError(t, err)

	canon, err := msg.Contents.CanonicalJSON()
	require.NoError(t, err)

	require.True(t, ed25519.Verify(pub, canon, sig))
}

func TestMessageKeyStable(t *testing.T) {
	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg, err := NewSignedMessage(kp, NewMessageContents("a", "line"))
	require.NoError(t, err)
	require.Equal(t, msg.Certificate.Signature, msg.Key())
}

func TestEnvelopeWithDecrementedTTL(t *testing.T) {
	e := Envelope{Forwarded: []string{"k1"}, TTL: 5}
	next := e.WithDecrementedTTL(4, "k2")

	require.Equal(t, uint8(4), next.TTL)
	require.Equal(t, []string{"k1", "k2"}, next.Forwarded)
	require.Equal(t, []string{"k1"}, e.Forwarded, "original envelope must be unmodified")
}
