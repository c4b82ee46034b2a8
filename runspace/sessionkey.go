package runspace

import (
	"encoding/base64"
	"fmt"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/serialization"
)

// initiateSessionKeyExchange implements the client-initiated half of
// [MS-PSRP] §2.2.2.5's key exchange: generate an RSA-2048 keypair, send
// PUBLIC_KEY, and stash the private key so the matching
// ENCRYPTED_SESSION_KEY can be decrypted when it arrives. Also used as the
// client's response to a server-sent PUBLIC_KEY_REQUEST, which asks the
// client to run the same flow in reverse.
func (p *Pool) initiateSessionKeyExchange() error {
	pair, err := serialization.GenerateSessionKeyPair()
	if err != nil {
		return fmt.Errorf("runspace: generate session keypair: %w", err)
	}
	der, err := pair.PublicKeyDER()
	if err != nil {
		return fmt.Errorf("runspace: encode public key: %w", err)
	}

	obj := clixml.NewPSObject()
	obj.Adapted.Set("PublicKey", clixml.String(base64.StdEncoding.EncodeToString(der)))
	data, err := p.Serializer().Serialize(obj)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.pendingKeyPair = pair
	p.mu.Unlock()

	return p.send(messages.MessageTypePublicKey, data)
}

// handleEncryptedSessionKey decrypts the server's AES session key and makes
// it available for SecureString encryption on this pool's messages.
func (p *Pool) handleEncryptedSessionKey(m *messages.Message) error {
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(m.Data)
	if err != nil {
		return err
	}
	obj, ok := v.(*clixml.PSObject)
	if !ok {
		return fmt.Errorf("runspace: ENCRYPTED_SESSION_KEY payload is not an object")
	}
	raw, ok := obj.Adapted.Get("EncryptedSessionKey")
	if !ok {
		return fmt.Errorf("runspace: ENCRYPTED_SESSION_KEY missing EncryptedSessionKey")
	}
	b64, ok := raw.(clixml.String)
	if !ok {
		return fmt.Errorf("runspace: EncryptedSessionKey is not a string")
	}
	encrypted, err := base64.StdEncoding.DecodeString(string(b64))
	if err != nil {
		return fmt.Errorf("runspace: decode EncryptedSessionKey: %w", err)
	}

	p.mu.Lock()
	pair := p.pendingKeyPair
	p.mu.Unlock()
	if pair == nil {
		return fmt.Errorf("runspace: ENCRYPTED_SESSION_KEY received with no pending key exchange")
	}

	key, err := pair.DecryptSessionKey(encrypted)
	if err != nil {
		return fmt.Errorf("runspace: decrypt session key: %w", err)
	}

	p.mu.Lock()
	p.sessionKey = key
	p.pendingKeyPair = nil
	p.mu.Unlock()
	p.emitSecurityEvent("session_key_established", nil)
	return nil
}

// SessionKey returns the negotiated AES session key, or nil if no key
// exchange has completed. Used by callers that need to encrypt a
// SecureString parameter before it is sent in a pipeline's CLIXML payload.
func (p *Pool) SessionKey() *serialization.SessionKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionKey
}
