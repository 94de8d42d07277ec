package stateprotect

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testKey(b byte) []byte { return bytes.Repeat([]byte{b}, MasterKeyLength) }

func newCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	c, err := New(Options{MasterKey: testKey(7), MaxAge: 10 * time.Minute, Now: clock.Now})
	require.NoError(t, err)
	return c
}

func sampleState(at time.Time) types.CorrelationState {
	return types.CorrelationState{
		Ticket: types.RequestTokenTicket{
			Token:             "Z6eEdO8MOmk394WozF5oKyuAv855l4Mlqo7hhlSLik",
			TokenSecret:       "Kd75W4OQfb2oJTV0vzGzeXftVAwgMnEK9MumzYcM",
			CallbackConfirmed: true,
		},
		ReturnURL: "/account?tab=1",
		IssuedAt:  at,
		Nonce:     "4b1f1a4e-1a0c-4f55-9d0f-3a1b0f1c2d3e",
	}
}

func TestProtectUnprotect_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, clock)
	in := sampleState(clock.Now())

	blob, err := c.Protect(in)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	out, err := c.Unprotect(blob)
	require.NoError(t, err)
	require.Equal(t, in.Ticket, out.Ticket)
	require.Equal(t, in.ReturnURL, out.ReturnURL)
	require.Equal(t, in.Nonce, out.Nonce)
	require.True(t, in.IssuedAt.Equal(out.IssuedAt))
}

func TestProtect_FillsIssuedAt(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newCodec(t, clock)
	s := sampleState(time.Time{})

	blob, err := c.Protect(s)
	require.NoError(t, err)
	out, err := c.Unprotect(blob)
	require.NoError(t, err)
	require.True(t, clock.Now().Equal(out.IssuedAt))
}

func TestProtect_HidesTicketSecret(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newCodec(t, clock)
	s := sampleState(clock.Now())

	blob, err := c.Protect(s)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	require.NoError(t, err)
	require.NotContains(t, string(raw), s.Ticket.TokenSecret)
	require.NotContains(t, blob, s.Ticket.TokenSecret)
}

func TestProtect_DifferentBlobsForSameState(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newCodec(t, clock)
	s := sampleState(clock.Now())
	a, err := c.Protect(s)
	require.NoError(t, err)
	b, err := c.Protect(s)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestUnprotect_Expired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, clock)
	blob, err := c.Protect(sampleState(clock.Now()))
	require.NoError(t, err)

	clock.Advance(10*time.Minute + time.Second)
	_, err = c.Unprotect(blob)
	require.ErrorIs(t, err, ErrExpired)
}

func TestUnprotect_IssuedInFuture(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, clock)
	blob, err := c.Protect(sampleState(clock.Now().Add(5 * time.Minute)))
	require.NoError(t, err)

	_, err = c.Unprotect(blob)
	require.ErrorIs(t, err, ErrExpired)
}

func TestUnprotect_EverySingleBitFlipIsTampered(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newCodec(t, clock)
	blob, err := c.Protect(sampleState(clock.Now()))
	require.NoError(t, err)

	for i := 0; i < len(blob); i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := []byte(blob)
			mutated[i] ^= 1 << bit
			_, err := c.Unprotect(string(mutated))
			require.ErrorIs(t, err, ErrTampered, "byte %d bit %d", i, bit)
		}
	}
}

func TestUnprotect_BinaryBitFlipIsTampered(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newCodec(t, clock)
	blob, err := c.Protect(sampleState(clock.Now()))
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	require.NoError(t, err)

	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x01
		_, err := c.Unprotect(base64.RawURLEncoding.EncodeToString(mutated))
		require.ErrorIs(t, err, ErrTampered, "byte %d", i)
	}
}

func TestUnprotect_TruncatedAndForeignKey(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newCodec(t, clock)
	blob, err := c.Protect(sampleState(clock.Now()))
	require.NoError(t, err)

	_, err = c.Unprotect(blob[:len(blob)/2])
	require.ErrorIs(t, err, ErrTampered)

	other, err := New(Options{MasterKey: testKey(8), Now: clock.Now})
	require.NoError(t, err)
	_, err = other.Unprotect(blob)
	require.ErrorIs(t, err, ErrTampered)

	// Misma clave maestra, distinto propósito: subclave distinta.
	otherPurpose, err := New(Options{MasterKey: testKey(7), Purpose: "something-else", Now: clock.Now})
	require.NoError(t, err)
	_, err = otherPurpose.Unprotect(blob)
	require.ErrorIs(t, err, ErrTampered)
}

func TestUnprotect_Malformed(t *testing.T) {
	c := newCodec(t, &fakeClock{t: time.Now()})
	_, err := c.Unprotect("")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = c.Unprotect("!!not base64!!")
	require.ErrorIs(t, err, ErrTampered)
}

func TestNew_RejectsShortKey(t *testing.T) {
	_, err := New(Options{MasterKey: []byte("short")})
	require.Error(t, err)
}

func TestParseMasterKey(t *testing.T) {
	raw := testKey(3)

	k, err := ParseMasterKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, k)

	k, err = ParseMasterKey(strings.Repeat("03", MasterKeyLength))
	require.NoError(t, err)
	require.Equal(t, raw, k)

	k, err = ParseMasterKey(strings.Repeat("x", MasterKeyLength))
	require.NoError(t, err)
	require.Len(t, k, MasterKeyLength)

	_, err = ParseMasterKey("too-short")
	require.Error(t, err)
	_, err = ParseMasterKey("  ")
	require.Error(t, err)
}
