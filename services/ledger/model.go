package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type EntryType string

const (
	TypeCredit EntryType = "CREDIT"
	TypeDebit  EntryType = "DEBIT"
)

type Source string

const (
	SourceTicketSale     Source = "TICKET_SALE"
	SourceRefund         Source = "REFUND"
	SourcePayout         Source = "PAYOUT"
	SourcePayoutReversal Source = "PAYOUT_REVERSAL"
)

// BalanceTransaction is an immutable ledger entry. Entries per organizer form
// a hash chain: each entry commits to its predecessor, so tampering with a
// persisted row is detectable via VerifyChain.
type BalanceTransaction struct {
	ID           string         `gorm:"column:id;primaryKey"`
	OrganizerID  string         `gorm:"column:organizer_id;index"`
	Type         string         `gorm:"column:type"`
	Amount       int64          `gorm:"column:amount"`
	Source       string         `gorm:"column:source"`
	ReferenceID  string         `gorm:"column:reference_id;index"`
	Description  string         `gorm:"column:description"`
	PreviousHash string         `gorm:"column:previous_hash"`
	Hash         string         `gorm:"column:hash"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (m *BalanceTransaction) HashFields() map[string]string {
	return map[string]string{
		"id":            m.ID,
		"organizer_id":  m.OrganizerID,
		"type":          m.Type,
		"amount":        fmt.Sprintf("%d", m.Amount),
		"source":        m.Source,
		"reference_id":  m.ReferenceID,
		"description":   m.Description,
		"previous_hash": m.PreviousHash,
	}
}

func (m *BalanceTransaction) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
