// Package deposits handles wallet top-ups. With Stripe configured a
// deposit is a PaymentIntent whose success webhook credits the ledger;
// without it the service credits directly, which keeps demo mode and
// tests independent of an external processor.
package deposits

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/idgen"
	"github.com/ptzlabs/marketplace/internal/ledger"
	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/money"
)

// Intent is what the client needs to finish a Stripe top-up.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
}

// Service creates deposit intents and settles webhook confirmations.
type Service struct {
	wallet        *ledger.Service
	secretKey     string
	webhookSecret string
}

func NewService(wallet *ledger.Service, secretKey, webhookSecret string) *Service {
	if secretKey != "" {
		stripe.Key = secretKey
	}
	return &Service{wallet: wallet, secretKey: secretKey, webhookSecret: webhookSecret}
}

// StripeEnabled reports whether top-ups go through Stripe.
func (s *Service) StripeEnabled() bool { return s.secretKey != "" }

// Create starts a top-up. When Stripe is off the wallet is credited
// immediately and the returned intent is already succeeded.
func (s *Service) Create(ctx context.Context, userID, amount string) (*Intent, error) {
	cents, ok := money.ParsePositive(amount)
	if !ok {
		return nil, apperrors.New(apperrors.CodeValidation, "amount must be a positive decimal")
	}
	normalized := money.Format(cents)

	if !s.StripeEnabled() {
		id := idgen.WithPrefix("dep_")
		if _, err := s.wallet.Deposit(ctx, userID, normalized, id, "wallet deposit"); err != nil {
			return nil, err
		}
		logging.L(ctx).Info("direct deposit credited", "userId", userID, "amount", normalized)
		return &Intent{ID: id, Amount: normalized, Status: "succeeded"}, nil
	}

	if !cents.IsInt64() {
		return nil, apperrors.New(apperrors.CodeValidation, "amount too large")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cents.Int64()),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Metadata: map[string]string{
			"user_id": userID,
			"amount":  normalized,
		},
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	logging.L(ctx).Info("payment intent created", "userId", userID, "amount", normalized, "intentId", pi.ID)
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       normalized,
		Status:       string(pi.Status),
	}, nil
}

// HandleWebhook verifies a Stripe event signature and credits the wallet
// on payment_intent.succeeded.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return apperrors.New(apperrors.CodeAuthorization, "webhook signature verification failed")
	}

	if event.Type != "payment_intent.succeeded" {
		logging.L(ctx).Debug("ignoring stripe event", "type", event.Type)
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return apperrors.New(apperrors.CodeValidation, "malformed payment intent payload")
	}

	userID := pi.Metadata["user_id"]
	if userID == "" {
		logging.L(ctx).Warn("payment intent without user metadata", "intentId", pi.ID)
		return apperrors.New(apperrors.CodeValidation, "payment intent missing user metadata")
	}
	amount := pi.Metadata["amount"]
	if amount == "" {
		amount = money.Format(big.NewInt(pi.Amount))
	}

	// Stripe retries webhooks; an intent already on the ledger is done.
	existing, err := s.wallet.List(ctx, ledger.Filter{
		UserID: userID, Type: ledger.TypeDeposit, ReferenceID: pi.ID, Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("check deposit %s: %w", pi.ID, err)
	}
	if len(existing) > 0 {
		logging.L(ctx).Info("deposit already credited", "intentId", pi.ID)
		return nil
	}

	if _, err := s.wallet.Deposit(ctx, userID, amount, pi.ID, "stripe deposit"); err != nil {
		return fmt.Errorf("credit deposit %s: %w", pi.ID, err)
	}
	logging.L(ctx).Info("stripe deposit credited", "userId", userID, "amount", amount, "intentId", pi.ID)
	return nil
}
