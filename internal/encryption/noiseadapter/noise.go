// Package noiseadapter is a reference netcore.Encryption implementation
// built on the Noise Protocol Framework's anonymous NN pattern (no static
// keys). It is a byte pump only: callers drive InitiateHandshake until it
// reports complete, then push/pop plaintext and ciphertext exactly as
// netcore.Encryption specifies. It is not a TLS replacement and performs no
// peer authentication — the NN pattern has no identity to check.
package noiseadapter

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/flynn/noise"

	"github.com/kayalabs/netcore"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

const maxRecordSize = 1 << 16

// Adapter implements netcore.Encryption. The zero value is not usable; build
// one with NewInitiator or NewResponder.
type Adapter struct {
	hs        *noise.HandshakeState
	cs1, cs2  *noise.CipherState
	initiator bool
	complete  bool

	rawIn     bytes.Buffer
	plainIn   bytes.Buffer
	cipherOut bytes.Buffer
}

// NewInitiator builds an Adapter that sends the first handshake message
// (the dialing side of a connection).
func NewInitiator() (*Adapter, error) {
	return newAdapter(true)
}

// NewResponder builds an Adapter that waits for the peer's first handshake
// message (the accepting side of a connection).
func NewResponder() (*Adapter, error) {
	return newAdapter(false)
}

func newAdapter(initiator bool) (*Adapter, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     noise.HandshakeNN,
		Initiator:   initiator,
	})
	if err != nil {
		return nil, fmt.Errorf("noiseadapter: init handshake: %w", err)
	}
	a := &Adapter{hs: hs, initiator: initiator}
	if initiator {
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("noiseadapter: write msg1: %w", err)
		}
		a.frameHandshake(msg)
	}
	return a, nil
}

func (a *Adapter) frameHandshake(msg []byte) {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(msg)))
	a.cipherOut.Write(hdr[:])
	a.cipherOut.Write(msg)
}

func (a *Adapter) takeHandshakeFrame() ([]byte, bool) {
	buf := a.rawIn.Bytes()
	if len(buf) < 2 {
		return nil, false
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	if len(buf) < 2+n {
		return nil, false
	}
	msg := make([]byte, n)
	copy(msg, buf[2:2+n])
	a.rawIn.Next(2 + n)
	return msg, true
}

// PushIncomingCipherText feeds bytes read off the wire into the session.
func (a *Adapter) PushIncomingCipherText(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if a.rawIn.Len()+len(data) > maxRecordSize*4 {
		return netcore.NewError(netcore.CodeInvalid, nil)
	}
	a.rawIn.Write(data)
	return nil
}

// InitiateHandshake advances the NN handshake as far as currently-buffered
// incoming bytes allow, returning true once both sides hold session keys.
func (a *Adapter) InitiateHandshake() (bool, error) {
	if a.complete {
		return true, nil
	}

	if a.initiator {
		msg, ok := a.takeHandshakeFrame()
		if !ok {
			return false, nil
		}
		payload, cs1, cs2, err := a.hs.ReadMessage(nil, msg)
		if err != nil {
			return false, netcore.NewError(netcore.CodeNotAuthorized, err)
		}
		a.plainIn.Write(payload)
		a.cs1, a.cs2 = cs1, cs2
		a.complete = true
		return true, nil
	}

	msg, ok := a.takeHandshakeFrame()
	if !ok {
		return false, nil
	}
	payload, _, _, err := a.hs.ReadMessage(nil, msg)
	if err != nil {
		return false, netcore.NewError(netcore.CodeNotAuthorized, err)
	}
	a.plainIn.Write(payload)

	reply, cs1, cs2, err := a.hs.WriteMessage(nil, nil)
	if err != nil {
		return false, fmt.Errorf("noiseadapter: write msg2: %w", err)
	}
	a.frameHandshake(reply)
	a.cs1, a.cs2 = cs1, cs2
	a.complete = true
	return true, nil
}

// encryptCipher and decryptCipher pick sides the way aznet's crypto.go does:
// the initiator encrypts with cs1 and decrypts with cs2, and the responder
// is the mirror image.
func (a *Adapter) encryptCipher() *noise.CipherState {
	if a.initiator {
		return a.cs1
	}
	return a.cs2
}

func (a *Adapter) decryptCipher() *noise.CipherState {
	if a.initiator {
		return a.cs2
	}
	return a.cs1
}

func (a *Adapter) drainIncomingRecords() error {
	for {
		buf := a.rawIn.Bytes()
		if len(buf) < 4 {
			return nil
		}
		n := int(binary.BigEndian.Uint32(buf[:4]))
		if n < 0 || n > maxRecordSize {
			return netcore.NewError(netcore.CodeInvalid, nil)
		}
		if len(buf) < 4+n {
			return nil
		}
		ciphertext := make([]byte, n)
		copy(ciphertext, buf[4:4+n])
		a.rawIn.Next(4 + n)

		plaintext, err := a.decryptCipher().Decrypt(nil, nil, ciphertext)
		if err != nil {
			return netcore.NewError(netcore.CodeNotAuthorized, err)
		}
		a.plainIn.Write(plaintext)
	}
}

// PopIncomingPlainText drains decrypted application bytes produced by prior
// PushIncomingCipherText calls, up to len(buf).
func (a *Adapter) PopIncomingPlainText(buf []byte) (int, error) {
	if a.complete {
		if err := a.drainIncomingRecords(); err != nil {
			return 0, err
		}
	}
	if a.plainIn.Len() == 0 {
		return 0, nil
	}
	return a.plainIn.Read(buf)
}

// PushOutgoingPlainText feeds application bytes into the session for
// encryption. The handshake must already be complete.
func (a *Adapter) PushOutgoingPlainText(data []byte) error {
	if !a.complete {
		return netcore.NewError(netcore.CodeInvalid, nil)
	}
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxRecordSize {
			chunk = chunk[:maxRecordSize]
		}
		ciphertext, err := a.encryptCipher().Encrypt(nil, nil, chunk)
		if err != nil {
			return netcore.NewError(netcore.CodeInternal, err)
		}
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(ciphertext)))
		a.cipherOut.Write(hdr[:])
		a.cipherOut.Write(ciphertext)
		data = data[len(chunk):]
	}
	return nil
}

// PopOutgoingCipherText drains ciphertext (and any still-unsent handshake
// messages) produced so far, up to len(buf).
func (a *Adapter) PopOutgoingCipherText(buf []byte) (int, error) {
	if a.cipherOut.Len() == 0 {
		return 0, nil
	}
	return a.cipherOut.Read(buf)
}

// Shutdown discards all buffered state. Idempotent.
func (a *Adapter) Shutdown() error {
	a.rawIn.Reset()
	a.plainIn.Reset()
	a.cipherOut.Reset()
	a.cs1, a.cs2 = nil, nil
	return nil
}

var _ netcore.Encryption = (*Adapter)(nil)
