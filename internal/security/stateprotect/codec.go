// Package stateprotect protege el CorrelationState que viaja por el browser del usuario
// durante el redirect al provider.
//
// El blob es base64url(version || nonce || XChaCha20-Poly1305(json(state))) con la versión
// como additional data. Da confidencialidad (el token secret no es legible por el browser
// ni por el provider) e integridad: cualquier bit alterado hace fallar el descifrado.
//
// Unprotect es todo o nada: nunca devuelve un estado parcial.
package stateprotect

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	version1 byte = 1

	// MasterKeyLength es el largo requerido de la clave maestra (32 bytes).
	MasterKeyLength = 32

	// DefaultMaxAge cubre a un usuario que se queda unos minutos en la pantalla de consentimiento.
	DefaultMaxAge = 15 * time.Minute

	// DefaultPurpose separa las claves derivadas de otros usos de la misma clave maestra.
	DefaultPurpose = "twitter-signin/correlation-state/v1"

	clockSkew = 30 * time.Second
)

var (
	// ErrTampered: el blob no autentica (bit alterado, truncado, otra clave).
	ErrTampered = errors.New("stateprotect: state tampered")
	// ErrExpired: el blob autentica pero superó MaxAge.
	ErrExpired = errors.New("stateprotect: state expired")
	// ErrMalformed: blob vacío o payload autenticado que no decodifica.
	ErrMalformed = errors.New("stateprotect: state malformed")
)

// blob is base64url without padding, strict so trailing bits cannot be flipped silently.
var blobEncoding = base64.RawURLEncoding.Strict()

// Options configura el Codec.
type Options struct {
	// MasterKey: 32 bytes. Se deriva una subclave por Purpose con HKDF-SHA256.
	MasterKey []byte
	Purpose   string
	MaxAge    time.Duration
	Now       func() time.Time
	// Rand para el nonce (nil = crypto/rand).
	Rand io.Reader
}

// Codec implementa protect/unprotect. Inmutable y seguro para uso concurrente.
type Codec struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
	rand   io.Reader
}

// New deriva la subclave y crea el Codec.
func New(opts Options) (*Codec, error) {
	if len(opts.MasterKey) != MasterKeyLength {
		return nil, fmt.Errorf("stateprotect: master key must be %d bytes, got %d", MasterKeyLength, len(opts.MasterKey))
	}
	purpose := opts.Purpose
	if purpose == "" {
		purpose = DefaultPurpose
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, opts.MasterKey, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("stateprotect: derive key: %w", err)
	}
	c := &Codec{
		key:    key,
		maxAge: opts.MaxAge,
		now:    opts.Now,
		rand:   opts.Rand,
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	return c, nil
}

// MaxAge returns the enforced maximum age.
func (c *Codec) MaxAge() time.Duration { return c.maxAge }

// Protect serializa y cifra el estado. IssuedAt vacío se completa con el reloj del Codec.
func (c *Codec) Protect(s types.CorrelationState) (string, error) {
	if s.IssuedAt.IsZero() {
		s.IssuedAt = c.now()
	}
	s.IssuedAt = s.IssuedAt.UTC()

	plain, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("stateprotect: encode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("stateprotect: cipher: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plain)+aead.Overhead())
	out[0] = version1
	if _, err := io.ReadFull(c.rand, out[1:]); err != nil {
		return "", fmt.Errorf("stateprotect: nonce: %w", err)
	}
	out = aead.Seal(out, out[1:], plain, out[:1])
	return blobEncoding.EncodeToString(out), nil
}

// Unprotect descifra, autentica y valida la edad del blob.
func (c *Codec) Unprotect(blob string) (types.CorrelationState, error) {
	var zero types.CorrelationState
	if blob == "" {
		return zero, ErrMalformed
	}
	raw, err := blobEncoding.DecodeString(blob)
	if err != nil {
		return zero, ErrTampered
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return zero, fmt.Errorf("stateprotect: cipher: %w", err)
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() || raw[0] != version1 {
		return zero, ErrTampered
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], raw[:1])
	if err != nil {
		return zero, ErrTampered
	}

	var s types.CorrelationState
	if err := json.Unmarshal(plain, &s); err != nil || s.IssuedAt.IsZero() {
		return zero, ErrMalformed
	}

	now := c.now()
	if s.IssuedAt.After(now.Add(clockSkew)) || now.Sub(s.IssuedAt) > c.maxAge {
		return zero, ErrExpired
	}
	return s, nil
}

// ParseMasterKey acepta base64 (std o raw), hex (64 chars) o 32 bytes crudos.
func ParseMasterKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("stateprotect: empty master key")
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == MasterKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == MasterKeyLength {
		return b, nil
	}
	if len(key) == 2*MasterKeyLength {
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	if len(key) == MasterKeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("stateprotect: master key must decode to %d bytes", MasterKeyLength)
}
