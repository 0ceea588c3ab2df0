package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
)

// PaymentStore хранилище платежей. ApplyNotification — атомарная
// единица применения вебхука, ключ — внешний референс шлюза.
type PaymentStore interface {
	Create(ctx context.Context, rec *model.PaymentRecord) error
	GetByReference(ctx context.Context, referenceID string) (*model.PaymentRecord, error)
	ApplyNotification(ctx context.Context, referenceID string, status model.PaymentStatus, rawPayload []byte) (*model.PaymentRecord, bool, error)
}

// WebhookNotification разобранное уведомление платёжного шлюза
type WebhookNotification struct {
	ExternalReferenceID string
	OrderStatus         string
	PaymentStatus       string
	Amount              float64
	RawPayload          []byte
}

// PaymentService согласует состояние платежей с уведомлениями шлюза.
// Шлюз доставляет как минимум один раз: повторы и конкурентные
// доставки по одному референсу безопасны, действует только первый
// переход из pending.
type PaymentService struct {
	store  PaymentStore
	logger *zap.Logger
}

func NewPaymentService(store PaymentStore, logger *zap.Logger) *PaymentService {
	return &PaymentService{store: store, logger: logger}
}

// Reconcile применяет уведомление шлюза к платежу.
// model.ErrPaymentNotFound не фатален: вызывающий подтверждает приём
// отправителю, событие остаётся в логе для ручной сверки.
func (s *PaymentService) Reconcile(ctx context.Context, n WebhookNotification) (*model.PaymentRecord, error) {
	if n.ExternalReferenceID == "" {
		return nil, fmt.Errorf("%w: missing external reference id", model.ErrValidation)
	}

	status := s.mapGatewayStatus(n)

	rec, applied, err := s.store.ApplyNotification(ctx, n.ExternalReferenceID, status, n.RawPayload)
	if err != nil {
		if errors.Is(err, model.ErrPaymentNotFound) {
			s.logger.Error("Payment notification for unknown reference, needs manual reconciliation",
				zap.String("external_reference_id", n.ExternalReferenceID),
				zap.String("order_status", n.OrderStatus),
				zap.String("payment_status", n.PaymentStatus),
				zap.Float64("amount", n.Amount),
			)
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("apply payment notification: %w", err)
	}

	if !applied {
		s.logger.Info("Duplicate payment notification ignored",
			zap.String("external_reference_id", n.ExternalReferenceID),
			zap.String("payment_status", string(rec.PaymentStatus)),
		)
		return rec, nil
	}

	s.logger.Info("Payment finalized",
		zap.Int64("payment_id", rec.ID),
		zap.String("external_reference_id", n.ExternalReferenceID),
		zap.String("payment_status", string(rec.PaymentStatus)),
		zap.String("payment_type", string(rec.PaymentType)),
		zap.Float64("amount", rec.Amount),
	)

	return rec, nil
}

// GetByReference получает платёж по внешнему референсу
func (s *PaymentService) GetByReference(ctx context.Context, referenceID string) (*model.PaymentRecord, error) {
	rec, err := s.store.GetByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, model.ErrPaymentNotFound
	}
	return rec, nil
}

// mapGatewayStatus сводит статус шлюза к терминальному статусу платежа.
// Регистр не важен; нераспознанный статус трактуется как отказ.
func (s *PaymentService) mapGatewayStatus(n WebhookNotification) model.PaymentStatus {
	raw := n.PaymentStatus
	if raw == "" {
		raw = n.OrderStatus
	}

	switch strings.ToLower(raw) {
	case "paid", "success", "completed", "settlement", "capture":
		return model.PaymentStatusCompleted
	case "failed", "failure", "cancel", "cancelled", "canceled", "expire", "expired", "deny", "user_dropped":
		return model.PaymentStatusFailed
	default:
		s.logger.Warn("Unrecognized gateway status, treating as failed",
			zap.String("external_reference_id", n.ExternalReferenceID),
			zap.String("gateway_status", raw),
		)
		return model.PaymentStatusFailed
	}
}

// TokenIssuer выдаёт платёжный токен шлюза для заказа.
// nil-реализация допустима на уровне сервиса бронирования: тогда
// бронь создаётся без токена, вебхук от этого не зависит.
type TokenIssuer interface {
	IssueToken(orderID string, grossAmount int64, customerName, customerEmail string) (token, redirectURL string, err error)
}

// SnapGateway TokenIssuer поверх Midtrans Snap
type SnapGateway struct {
	client snap.Client
}

// NewSnapGateway создаёт клиент Snap (sandbox)
func NewSnapGateway(serverKey string) *SnapGateway {
	g := &SnapGateway{}
	g.client.New(serverKey, midtrans.Sandbox)
	return g
}

func (g *SnapGateway) IssueToken(orderID string, grossAmount int64, customerName, customerEmail string) (string, string, error) {
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: grossAmount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: customerName,
			Email: customerEmail,
		},
	}

	resp, err := g.client.CreateTransaction(req)
	if err != nil {
		return "", "", fmt.Errorf("create snap transaction: %w", err)
	}

	return resp.Token, resp.RedirectURL, nil
}
