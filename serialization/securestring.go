package serialization

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/smnsjas/go-psrpcore/clixml"
)

// utf16LEBytes encodes s as .NET would store it in memory before
// encryption: UTF-16, little-endian, no BOM.
func utf16LEBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		buf[2*i] = byte(u)
		buf[2*i+1] = byte(u >> 8)
	}
	return buf
}

// utf16LEToString reverses utf16LEBytes.
func utf16LEToString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", newError(KindInvalidEncoding, "UTF-16LE plaintext has odd byte length")
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	runes := utf16.Decode(units)
	var buf bytes.Buffer
	buf.Grow(len(runes) * utf8.UTFMax)
	for _, r := range runes {
		buf.WriteRune(r)
	}
	return buf.String(), nil
}

// SessionKeyPair is the client-generated RSA key used to negotiate a
// SecureString session key with the remote runspace, per [MS-PSRP]
// §2.2.5.1.24. The runspace pool generates one keypair per key exchange and
// sends the public key in a PUBLIC_KEY message; the private half never
// leaves the client.
type SessionKeyPair struct {
	private *rsa.PrivateKey
}

// GenerateSessionKeyPair creates a fresh 2048-bit RSA keypair.
func GenerateSessionKeyPair() (*SessionKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, wrapError(KindInvalidEncoding, "generating session RSA key", err)
	}
	return &SessionKeyPair{private: key}, nil
}

// PublicKeyDER returns the X.509 SubjectPublicKeyInfo encoding of the public
// half, the form carried in the PSRP PUBLIC_KEY message.
func (k *SessionKeyPair) PublicKeyDER() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.private.PublicKey)
	if err != nil {
		return nil, wrapError(KindInvalidEncoding, "marshaling session public key", err)
	}
	return der, nil
}

// SessionKey holds the AES-128 key negotiated for SecureString traffic once
// the server has returned its ENCRYPTED_SESSION_KEY message.
type SessionKey struct {
	aesKey []byte
}

// DecryptSessionKey unwraps the AES key the server encrypted to our RSA
// public key. PSRP uses PKCS#1 v1.5 padding for this exchange (not OAEP),
// matching .NET's RSACryptoServiceProvider default.
func (k *SessionKeyPair) DecryptSessionKey(encryptedKey []byte) (*SessionKey, error) {
	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, k.private, encryptedKey)
	if err != nil {
		return nil, wrapError(KindInvalidEncoding, "decrypting session key", err)
	}
	return &SessionKey{aesKey: aesKey}, nil
}

// secureStringIV derives the fixed, protocol-level CBC IV used for every
// SecureString encrypted under a given session key, per [MS-PSRP
// §2.2.5.1.24]: the IV is not transmitted on the wire (the SS element
// carries only ciphertext) and is not randomized per call — both peers
// negotiate exactly one AES session key and derive its IV the same way, so
// there is nothing left to agree on out of band. It is scoped to
// "per-string" use (SecureString traffic only, never reused for any other
// AES usage) by folding in a fixed domain-separation label.
func secureStringIV(aesKey []byte) []byte {
	sum := sha256.Sum256(append([]byte("MS-PSRP-SecureString-IV:"), aesKey...))
	return sum[:aes.BlockSize]
}

// EncryptSecureString encrypts plaintext under the negotiated session key
// and returns a SecureString ready to serialize. The wire encoding is
// base64(ciphertext) only, AES-128-CBC with PKCS#7 padding and the
// protocol-fixed IV from secureStringIV — no IV is embedded in or
// transmitted alongside the ciphertext.
func EncryptSecureString(key *SessionKey, plaintext string) (clixml.SecureString, error) {
	if key == nil {
		return clixml.SecureString{}, newError(KindSecureStringBeforeKeyExchange, "no session key negotiated")
	}

	block, err := aes.NewCipher(key.aesKey)
	if err != nil {
		return clixml.SecureString{}, wrapError(KindInvalidEncoding, "constructing AES cipher", err)
	}

	padded := pkcs7Pad(utf16LEBytes(plaintext), block.BlockSize())

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, secureStringIV(key.aesKey)).CryptBlocks(ciphertext, padded)

	return clixml.SecureString{Ciphertext: ciphertext}, nil
}

// DecryptSecureString reverses EncryptSecureString.
func DecryptSecureString(key *SessionKey, ss clixml.SecureString) (string, error) {
	if key == nil {
		return "", newError(KindSecureStringBeforeKeyExchange, "no session key negotiated")
	}

	block, err := aes.NewCipher(key.aesKey)
	if err != nil {
		return "", wrapError(KindInvalidEncoding, "constructing AES cipher", err)
	}
	if len(ss.Ciphertext) == 0 || len(ss.Ciphertext)%block.BlockSize() != 0 {
		return "", newError(KindInvalidEncoding, "SecureString ciphertext not block-aligned")
	}

	plainPadded := make([]byte, len(ss.Ciphertext))
	cipher.NewCBCDecrypter(block, secureStringIV(key.aesKey)).CryptBlocks(plainPadded, ss.Ciphertext)

	plain, err := pkcs7Unpad(plainPadded, block.BlockSize())
	if err != nil {
		return "", err
	}
	return utf16LEToString(plain)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, newError(KindInvalidEncoding, "PKCS#7 padding: invalid length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, newError(KindInvalidEncoding, "PKCS#7 padding: invalid pad length")
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, newError(KindInvalidEncoding, "PKCS#7 padding: corrupt pad bytes")
	}
	return data[:len(data)-padLen], nil
}
