package service

import (
	"context"

	"pdv-sorveteria/models"
)

// PaymentGatewayInterface defines the contract for the card terminal and Pix
// provider. Amounts are minor units; correlationID is the sale id.
type PaymentGatewayInterface interface {
	CreateCardIntent(ctx context.Context, amount int64, correlationID string, kind models.CardKind) (models.IntentHandle, error)
	PollIntent(ctx context.Context, handle models.IntentHandle) (models.IntentStatus, error)
	CreatePixOrder(ctx context.Context, amount int64, correlationID string) (models.PixOrder, error)
	// PollPixOrder reports the order currently outstanding at the terminal, whoever created it
	PollPixOrder(ctx context.Context) (models.PixOrderStatus, error)
	CancelPixOrder(ctx context.Context) error
}
