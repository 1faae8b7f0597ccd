package websocket

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/box"

	"relaychat/internal/models"
)

// Box frame layout: 24-byte random nonce followed by the sealed ciphertext
// of the JSON envelope. Both directions use the same construction with the
// peer's public key and the local private key.
const nonceSize = 24

var (
	errFrameTooShort = errors.New("encrypted frame shorter than nonce")
	errOpenFailed    = errors.New("box open failed")
)

// SealedChannel encrypts and decrypts envelopes for one connection once
// both sides hold each other's public keys. A nil *SealedChannel means the
// key exchange has not completed and the transport falls back to plaintext
// named events; callers never branch on the mode themselves.
type SealedChannel struct {
	peerPublicKey *[32]byte
	privateKey    *[32]byte
}

func NewSealedChannel(peerPublicKey, privateKey *[32]byte) *SealedChannel {
	return &SealedChannel{peerPublicKey: peerPublicKey, privateKey: privateKey}
}

// Seal wraps a serialized envelope into a single binary frame.
func (s *SealedChannel) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], plain, &nonce, s.peerPublicKey, s.privateKey), nil
}

// Open unwraps a binary frame back into the serialized envelope.
func (s *SealedChannel) Open(frame []byte) ([]byte, error) {
	if len(frame) < nonceSize {
		return nil, errFrameTooShort
	}
	var nonce [nonceSize]byte
	copy(nonce[:], frame[:nonceSize])

	plain, ok := box.Open(nil, frame[nonceSize:], &nonce, s.peerPublicKey, s.privateKey)
	if !ok {
		return nil, errOpenFailed
	}
	return plain, nil
}

// EncodeEnvelope serializes a named event and its payload into the logical
// wire frame shared by the plain and encrypted paths.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Envelope{Event: event, Data: raw})
}

// DecodeEnvelope parses a serialized frame back into the envelope.
func DecodeEnvelope(frame []byte) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return models.Envelope{}, err
	}
	if env.Event == "" {
		return models.Envelope{}, errors.New("envelope missing event name")
	}
	return env, nil
}
