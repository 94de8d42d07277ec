// Package certpin valida los certificados TLS que presentan los endpoints backchannel
// del provider contra una lista de Subject Key Identifiers (pinning).
//
// Hay dos políticas explícitas (no hay validador "nil"):
//
//   - SystemTrust: validación estándar de cadena y hostname.
//   - PinnedTrust: además (ChainAndPin) o en lugar de (PinOnly) la validación estándar,
//     al menos un certificado de la cadena debe tener un SKI presente en el PinSet.
//
// El Validator no toca estado TLS global: TLSConfig devuelve una configuración nueva
// en cada llamada y la decisión aplica solo a la conexión que se está estableciendo.
// Un rechazo en el handshake llega al caller envuelto en ErrUntrusted.
package certpin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrUntrusted se envuelve en todo rechazo del validador.
var ErrUntrusted = errors.New("certpin: untrusted endpoint")

// Policy decide cómo se confía en un endpoint.
type Policy int

const (
	// SystemTrust delega en la validación estándar (roots del sistema o RootCAs).
	SystemTrust Policy = iota
	// PinnedTrust exige un SKI fijado en la cadena presentada.
	PinnedTrust
)

func (p Policy) String() string {
	switch p {
	case SystemTrust:
		return "system"
	case PinnedTrust:
		return "pinned"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy acepta "system" o "pinned".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system", "default", "none":
		return SystemTrust, nil
	case "pinned", "pin", "":
		return PinnedTrust, nil
	}
	return 0, fmt.Errorf("certpin: unknown trust policy %q", s)
}

// ChainMode controla si la validación de cadena se mantiene con PinnedTrust.
type ChainMode int

const (
	// ChainAndPin: cadena + hostname válidos Y un pin presente.
	ChainAndPin ChainMode = iota
	// PinOnly: solo el pin decide.
	PinOnly
)

func (m ChainMode) String() string {
	if m == PinOnly {
		return "pin_only"
	}
	return "chain_and_pin"
}

// ParseChainMode acepta "chain_and_pin" (default) o "pin_only".
func ParseChainMode(s string) (ChainMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chain_and_pin", "chain+pin":
		return ChainAndPin, nil
	case "pin_only", "pin":
		return PinOnly, nil
	}
	return 0, fmt.Errorf("certpin: unknown chain mode %q", s)
}

// PinSet es un conjunto inmutable de SKIs en hex (comparación case-insensitive exacta).
type PinSet struct {
	ids map[string]struct{}
}

// NewPinSet normaliza los identificadores: mayúsculas, sin espacios ni ':'.
func NewPinSet(ids ...string) (PinSet, error) {
	set := PinSet{ids: make(map[string]struct{}, len(ids))}
	for _, raw := range ids {
		id := normalizeID(raw)
		if id == "" {
			continue
		}
		if _, err := hex.DecodeString(id); err != nil {
			return PinSet{}, fmt.Errorf("certpin: invalid subject key identifier %q: %w", raw, err)
		}
		set.ids[id] = struct{}{}
	}
	return set, nil
}

// MustPinSet es NewPinSet que entra en pánico; solo para valores constantes.
func MustPinSet(ids ...string) PinSet {
	s, err := NewPinSet(ids...)
	if err != nil {
		panic(err)
	}
	return s
}

func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToUpper(s)
}

// Len returns the number of pinned identifiers.
func (s PinSet) Len() int { return len(s.ids) }

// Contains reports whether the SKI (hex, any case) is pinned.
func (s PinSet) Contains(id string) bool {
	_, ok := s.ids[normalizeID(id)]
	return ok
}

// IDs devuelve una copia ordenada no garantizada de los identificadores.
func (s PinSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

func (s PinSet) matchesAny(chain []*x509.Certificate) bool {
	for _, c := range chain {
		if c == nil || len(c.SubjectKeyId) == 0 {
			continue
		}
		if _, ok := s.ids[SubjectKeyID(c)]; ok {
			return true
		}
	}
	return false
}

// SubjectKeyID devuelve el SKI en hex mayúsculas ("" si el certificado no lo trae).
func SubjectKeyID(c *x509.Certificate) string {
	return strings.ToUpper(hex.EncodeToString(c.SubjectKeyId))
}

// Config construye un Validator.
type Config struct {
	Policy Policy
	Mode   ChainMode
	Pins   PinSet
	// Roots reemplaza el pool del sistema (nil = sistema).
	Roots *x509.CertPool
	// Now para la validación de vigencia (nil = time.Now).
	Now func() time.Time
}

// Validator decide la confianza de una cadena presentada. Inmutable.
type Validator struct {
	policy Policy
	mode   ChainMode
	pins   PinSet
	roots  *x509.CertPool
	now    func() time.Time
}

// New valida la configuración y crea el Validator.
func New(cfg Config) (*Validator, error) {
	if cfg.Policy == PinnedTrust && cfg.Pins.Len() == 0 {
		return nil, errors.New("certpin: pinned trust requires at least one subject key identifier")
	}
	if cfg.Policy != SystemTrust && cfg.Policy != PinnedTrust {
		return nil, fmt.Errorf("certpin: unknown policy %d", int(cfg.Policy))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{policy: cfg.Policy, mode: cfg.Mode, pins: cfg.Pins, roots: cfg.Roots, now: now}, nil
}

// Policy returns the configured policy.
func (v *Validator) Policy() Policy { return v.policy }

// Validate acepta (nil) o rechaza (error que envuelve ErrUntrusted) la cadena presentada
// por hostname. chain[0] es el certificado hoja.
func (v *Validator) Validate(chain []*x509.Certificate, hostname string) error {
	if len(chain) == 0 || chain[0] == nil {
		return fmt.Errorf("%w: empty certificate chain", ErrUntrusted)
	}

	if v.policy == PinnedTrust && v.mode == PinOnly {
		if v.pins.matchesAny(chain) {
			return nil
		}
		return fmt.Errorf("%w: no pinned subject key identifier in chain for %s", ErrUntrusted, hostname)
	}

	verified, err := v.verifyChain(chain, hostname)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrusted, err)
	}
	if v.policy == SystemTrust {
		return nil
	}

	if v.pins.matchesAny(chain) {
		return nil
	}
	for _, vc := range verified {
		if v.pins.matchesAny(vc) {
			return nil
		}
	}
	return fmt.Errorf("%w: no pinned subject key identifier in chain for %s", ErrUntrusted, hostname)
}

func (v *Validator) verifyChain(chain []*x509.Certificate, hostname string) ([][]*x509.Certificate, error) {
	inter := x509.NewCertPool()
	for _, c := range chain[1:] {
		if c != nil {
			inter.AddCert(c)
		}
	}
	return chain[0].Verify(x509.VerifyOptions{
		DNSName:       hostname,
		Roots:         v.roots,
		Intermediates: inter,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
}

// TLSConfig devuelve una configuración TLS nueva para conectarse a host.
// host se fija acá porque el cliente no envía SNI para IPs y ConnectionState.ServerName
// queda vacío en ese caso.
func (v *Validator) TLSConfig(host string) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    v.roots,
		ServerName: host,
	}
	if v.policy == SystemTrust {
		return cfg
	}
	// La verificación completa ocurre en VerifyConnection (cadena + hostname + pin).
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		return v.Validate(cs.PeerCertificates, host)
	}
	return cfg
}

// DialTLSContext sirve como http.Transport.DialTLSContext: cada conexión recibe su propia
// configuración y el handshake falla antes de que se envíe cualquier byte del request.
func (v *Validator) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	d := &tls.Dialer{Config: v.TLSConfig(host)}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		var cve *tls.CertificateVerificationError
		if errors.As(err, &cve) && !errors.Is(err, ErrUntrusted) {
			return nil, fmt.Errorf("%w: %v", ErrUntrusted, err)
		}
		return nil, err
	}
	return conn, nil
}
