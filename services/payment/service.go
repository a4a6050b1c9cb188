package payment

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/db/option"
	"eventpay/pkg/errutil"
	"eventpay/pkg/repository"
	"eventpay/pkg/sequence"
	"eventpay/services/gateway"
	"eventpay/services/registration"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	seq     sequence.Generator
	gateway gateway.PaymentGateway
	fees    *gateway.Fees

	payments      repository.Repository[Payment]
	events        repository.Repository[registration.Event]
	registrations repository.Repository[registration.Registration]
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Seq     sequence.Generator
	Gateway gateway.PaymentGateway
	Fees    *gateway.Fees
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		node:          p.Node,
		seq:           p.Seq,
		gateway:       p.Gateway,
		fees:          p.Fees,
		payments:      repository.ProvideStore[Payment](p.DB),
		events:        repository.ProvideStore[registration.Event](p.DB),
		registrations: repository.ProvideStore[registration.Registration](p.DB),
	}
}

type CreateOrderRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	EventID      string `json:"event_id" binding:"required"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Description  string `json:"description"`
}

type CreateOrderResult struct {
	Payment        *Payment `json:"payment"`
	RegistrationID string   `json:"registration_id,omitempty"`
	RedirectURL    string   `json:"redirect_url,omitempty"`
	Token          string   `json:"token,omitempty"`
}

// CreateOrder opens a payment for an event registration. Free events skip the
// gateway entirely: the payment is recorded as PAID and the registration is
// created in the same transaction.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 {
		return nil, errutil.ValidationFailed("quantity must be at least 1", nil)
	}
	if req.Amount < 0 {
		return nil, errutil.ValidationFailed("amount must not be negative", nil)
	}
	if req.Currency == "" {
		req.Currency = "IDR"
	}

	event, err := s.events.FindOne(ctx, &registration.Event{ID: req.EventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}
	if registration.EventStatus(event.Status) != registration.EventActive {
		return nil, errutil.UnprocessableEntity("event is not accepting registrations", nil)
	}
	if !event.StartAt.IsZero() && time.Now().After(event.StartAt) {
		return nil, errutil.UnprocessableEntity("event has already started", nil)
	}

	if !event.AllowMultiple {
		existing, err := s.registrations.Count(ctx, &registration.Registration{
			UserID:  req.UserID,
			EventID: req.EventID,
			Status:  string(registration.StatusConfirmed),
		})
		if err != nil {
			return nil, errutil.Internal("failed to check existing registration", err)
		}
		if existing > 0 {
			return nil, errutil.Conflict("user is already registered for this event", nil)
		}
	}

	code, err := s.seq.NextOrderCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate order code", err)
	}

	if req.Amount == 0 {
		return s.createFreeOrder(ctx, code, req)
	}

	pmt := &Payment{
		ID:           s.node.Generate().String(),
		OrderCode:    code,
		UserID:       req.UserID,
		EventID:      req.EventID,
		TicketTypeID: req.TicketTypeID,
		Quantity:     req.Quantity,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       string(StatusPending),
	}
	if err := s.payments.Create(ctx, pmt); err != nil {
		return nil, errutil.Internal("failed to create payment", err)
	}

	order, err := s.gateway.CreateOrder(ctx, &gateway.OrderRequest{
		OrderCode:   code,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CustomerID:  req.UserID,
		Description: req.Description,
	})
	if err != nil {
		if _, uerr := s.payments.UpdateWhere(ctx,
			&Payment{ID: pmt.ID, Status: string(StatusPending)},
			map[string]any{"status": string(StatusFailed), "failure_reason": "gateway order creation failed"},
		); uerr != nil {
			zap.L().Error("failed to mark payment failed after gateway error",
				zap.String("payment_id", pmt.ID), zap.Error(uerr))
		}
		return nil, err
	}

	if err := s.payments.Update(ctx, pmt.ID, map[string]any{
		"gateway_reference": order.GatewayOrderID,
	}); err != nil {
		return nil, errutil.Internal("failed to record gateway reference", err)
	}
	pmt.GatewayReference = order.GatewayOrderID

	zap.L().Info("payment order created",
		zap.String("payment_id", pmt.ID),
		zap.String("order_code", code),
		zap.Int64("amount", req.Amount),
	)

	return &CreateOrderResult{
		Payment:     pmt,
		RedirectURL: order.RedirectURL,
		Token:       order.Token,
	}, nil
}

func (s *Service) createFreeOrder(ctx context.Context, code string, req *CreateOrderRequest) (*CreateOrderResult, error) {
	var pmt *Payment
	var reg *registration.Registration

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pmt = &Payment{
			ID:           s.node.Generate().String(),
			OrderCode:    code,
			UserID:       req.UserID,
			EventID:      req.EventID,
			TicketTypeID: req.TicketTypeID,
			Quantity:     req.Quantity,
			Amount:       0,
			Currency:     req.Currency,
			Status:       string(StatusPaid),
		}
		if err := s.payments.WithTrx(tx).Create(ctx, pmt); err != nil {
			return errutil.Internal("failed to create payment", err)
		}

		var err error
		reg, err = registration.Create(ctx, tx, s.node, registration.CreateParams{
			PaymentID:    pmt.ID,
			UserID:       req.UserID,
			EventID:      req.EventID,
			TicketTypeID: req.TicketTypeID,
			Quantity:     req.Quantity,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &CreateOrderResult{Payment: pmt, RegistrationID: reg.ID}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	pmt, err := s.payments.FindOne(ctx, &Payment{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load payment", err)
	}
	if pmt == nil {
		// The id may be a human-facing order code.
		pmt, err = s.payments.FindOne(ctx, &Payment{OrderCode: id})
		if err != nil {
			return nil, errutil.Internal("failed to load payment", err)
		}
	}
	if pmt == nil {
		return nil, errutil.NotFound("payment not found", nil)
	}
	return pmt, nil
}

type ListFilter struct {
	UserID  string
	EventID string
	Status  string
	Limit   int
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Payment, error) {
	return s.payments.Find(ctx, &Payment{
		UserID:  f.UserID,
		EventID: f.EventID,
		Status:  f.Status,
	},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(f.Limit),
	)
}

// EstimateFee previews the platform fee charged on a ticket sale.
func (s *Service) EstimateFee(amount int64) (*gateway.FeeBreakdown, error) {
	if amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}
	fee := s.fees.Platform.Calculate(amount)
	return &fee, nil
}
