package ledger

import (
	"context"
	"encoding/json"

	"eventpay/pkg/db/option"
	"eventpay/pkg/errutil"
	"eventpay/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	entries repository.Repository[BalanceTransaction]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		entries: repository.ProvideStore[BalanceTransaction](p.DB),
	}
}

type EntryParams struct {
	OrganizerID string
	Type        EntryType
	Amount      int64
	Source      Source
	ReferenceID string
	Description string
	Metadata    map[string]any
}

// Append writes one ledger entry inside the caller's transaction, linking it
// to the organizer's previous entry. The caller owns atomicity: the entry
// must be created in the same transaction as the state change it explains.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p EntryParams) (*BalanceTransaction, error) {
	if p.Amount <= 0 {
		return nil, errutil.ValidationFailed("ledger entry amount must be positive", nil)
	}
	if p.Type != TypeCredit && p.Type != TypeDebit {
		return nil, errutil.ValidationFailed("unsupported ledger entry type", nil)
	}

	entriesTx := s.entries.WithTrx(tx)

	lastEntry, err := entriesTx.FindOne(ctx, &BalanceTransaction{OrganizerID: p.OrganizerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		return nil, err
	}

	previousHash := "GENESIS"
	if lastEntry != nil {
		previousHash = lastEntry.Hash
	}

	var meta datatypes.JSON
	if p.Metadata != nil {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.Internal("failed to encode ledger metadata", err)
		}
		meta = datatypes.JSON(raw)
	}

	entry := &BalanceTransaction{
		ID:           s.node.Generate().String(),
		OrganizerID:  p.OrganizerID,
		Type:         string(p.Type),
		Amount:       p.Amount,
		Source:       string(p.Source),
		ReferenceID:  p.ReferenceID,
		Description:  p.Description,
		PreviousHash: previousHash,
		Metadata:     meta,
	}
	entry.Hash = entry.GenerateHash()

	if err := entriesTx.Create(ctx, entry); err != nil {
		zap.L().Error("failed to append ledger entry",
			zap.String("organizer_id", p.OrganizerID),
			zap.Error(err),
		)
		return nil, err
	}

	return entry, nil
}

// Balance computes the organizer's balance by summing entries. There is no
// cached counter: the entries are the source of truth.
func (s *Service) Balance(ctx context.Context, tx *gorm.DB, organizerID string) (int64, error) {
	db := s.db
	if tx != nil {
		db = tx
	}

	var balance int64
	err := db.WithContext(ctx).
		Model(&BalanceTransaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)", string(TypeCredit)).
		Where("organizer_id = ?", organizerID).
		Scan(&balance).Error
	if err != nil {
		return 0, err
	}

	return balance, nil
}

func (s *Service) List(ctx context.Context, organizerID string, limit int) ([]*BalanceTransaction, error) {
	return s.entries.Find(ctx, &BalanceTransaction{OrganizerID: organizerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
		option.WithLimit(limit),
	)
}

// VerifyChain walks the organizer's entries oldest-first and recomputes every
// hash link.
func (s *Service) VerifyChain(ctx context.Context, organizerID string) (bool, error) {
	entries, err := s.entries.Find(ctx, &BalanceTransaction{OrganizerID: organizerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		return false, err
	}

	lastHash := "GENESIS"
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}
