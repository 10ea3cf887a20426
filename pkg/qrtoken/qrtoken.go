package qrtoken

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Payload is the plaintext embedded in a QR session token. It is stored only
// in encrypted form; scanning clients decrypt it with the one-time key.
type Payload struct {
	SessionID   string    `json:"session_id"`
	LectureID   string    `json:"lecture_id"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	SubjectCode string    `json:"subject_code,omitempty"`
	Section     string    `json:"section,omitempty"`
	RoomID      string    `json:"room_id,omitempty"`
	TeacherID   string    `json:"teacher_id,omitempty"`
	Version     string    `json:"version"`
}

// PayloadVersion tags the wire format of encrypted payloads.
const PayloadVersion = "1.0"

// NewSessionID returns a unique session identifier of the form
// QR_<utc-timestamp>_<random>.
func NewSessionID(now time.Time) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("QR_%s_%s", now.UTC().Format("20060102_150405"), base64.RawURLEncoding.EncodeToString(buf))
}

// NewKey generates a fresh symmetric key. The key is handed to the caller
// exactly once; only its fingerprint is ever persisted.
func NewKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Fingerprint returns the hex SHA-256 of a key, the only form stored.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// FingerprintMatches compares a candidate key against a stored fingerprint
// in constant time.
func FingerprintMatches(key []byte, fingerprint string) bool {
	got := Fingerprint(key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(fingerprint)) == 1
}

// EncodeKey renders a key for transport to the issuing teacher's client.
func EncodeKey(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey parses a transported key.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, nil
}

// Seal encrypts a payload with the session key. Output is base64 of
// nonce||ciphertext.
func Seal(payload Payload, key []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts an encrypted payload. Any integrity failure is reported as
// an error; callers map it to the tampered-payload variant.
func Open(encrypted string, key []byte) (*Payload, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}
