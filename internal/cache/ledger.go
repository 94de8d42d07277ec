package cache

import (
	"context"
	"time"
)

const ledgerKeyPrefix = "signin:nonce:"

// NonceLedger registra nonces consumidos. Un nonce se acepta una sola vez dentro de su TTL.
type NonceLedger struct {
	client Client
}

// NewNonceLedger crea un ledger sobre client.
func NewNonceLedger(client Client) *NonceLedger {
	return &NonceLedger{client: client}
}

// Consume marca nonce como usado. Retorna false si ya había sido consumido.
// ttl debe cubrir la vida máxima del estado que lo contiene.
func (l *NonceLedger) Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, ledgerKeyPrefix+nonce, "1", ttl)
}
