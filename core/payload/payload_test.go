package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lineswarm/relay/core/message"
	"github.com/lineswarm/relay/crypto/keys"
)

func TestRoundTripFidelity(t *testing.T) {
	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg, err := message.NewSignedMessage(kp, message.NewMessageContents("a", "line one"))
	require.NoError(t, err)

	envelopes := []message.Envelope{{Forwarded: []string{}, TTL: 8, Message: msg}}

	wire, err := CreatePayload(kp, envelopes)
	require.NoError(t, err)

	untrusted, err := ParsePayload(wire)
	require.NoError(t, err)

	trusted, err := untrusted.TryTrust(NewKeySet(untrusted.Certificate.Key))
	require.NoError(t, err)

	require.Equal(t, envelopes, trusted.Envelopes)
	require.Equal(t, 0, trusted.UnverifiedMessagesCount)
}

func TestTryTrustRejectsUntrustedSender(t *testing.T) {
	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	wire, err := CreatePayload(kp, nil)
	require.NoError(t, err)

	untrusted, err := ParsePayload(wire)
	require.NoError(t, err)

	_, err = untrusted.TryTrust(NewKeySet())
	require.ErrorIs(t, err, ErrPublicKeyNotTrusted)
}

func TestTryTrustRejectsMalformedPublicKey(t *testing.T) {
	wire := []byte(`{"certificate":{"key":"not-valid-base64!!","signature":"AA=="},"envelopes":[]}`)
	untrusted, err := ParsePayload(wire)
	require.NoError(t, err)

	_, err = untrusted.TryTrust(NewKeySet())
	require.ErrorIs(t, err, ErrMalformedPublicKey)
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	_, err := ParsePayload([]byte(`{"fact":"this json is nonsense"}`))
	require.ErrorIs(t, err, ErrCannotParseJSON)

	_, err = ParsePayload([]byte(`not even json`))
	require.ErrorIs(t, err, ErrCannotParseJSON)
}

func TestTryTrustRejectsTamperedEnvelopes(t *testing.T) {
	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg, err := message.NewSignedMessage(kp, message.NewMessageContents("a", "line one"))
	require.NoError(t, err)
	envelopes := []message.Envelope{{TTL: 8, Message: msg}}

	wire, err := CreatePayload(kp, envelopes)
	require.NoError(t, err)

	untrusted, err := ParsePayload(wire)
	require.NoError(t, err)

	tamperedMsg, err := json.Marshal(msg)
	require.NoError(t, err)
	untrusted.RawEnvelopes = []byte(`[{"forwarded":[],"ttl":200,"message":` + string(tamperedMsg) + `}]`)

	_, err = untrusted.TryTrust(NewKeySet(untrusted.Certificate.Key))
	require.ErrorIs(t, err, ErrCannotVerify)
}

func TestTryTrustCountsUnverifiedInnerEnvelope(t *testing.T) {
	outerKP, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)
	innerKP, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	innerMsg, err := message.NewSignedMessage(innerKP, message.NewMessageContents("a", "line one"))
	require.NoError(t, err)
	// Corrupt the inner signature so it no longer verifies.
	innerMsg.Certificate.Signature = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	envelopes := []message.Envelope{{TTL: 8, Message: innerMsg}}
	wire, err := CreatePayload(outerKP, envelopes)
	require.NoError(t, err)

	untrusted, err := ParsePayload(wire)
	require.NoError(t, err)

	trusted, err := untrusted.TryTrust(NewKeySet(untrusted.Certificate.Key))
	require.NoError(t, err)
	require.Empty(t, trusted.Envelopes)
	require.Equal(t, 1, trusted.UnverifiedMessagesCount)
}
