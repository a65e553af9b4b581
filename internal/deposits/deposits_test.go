package deposits

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/ledger"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload produces a Stripe-Signature header for payload, the same
// scheme Stripe uses: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func succeededIntentPayload(intentID, userID, amount string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": %q,
				"object": "payment_intent",
				"amount": 5000,
				"metadata": {"user_id": %q, "amount": %q}
			}
		}
	}`, intentID, userID, amount))
}

func TestDirectDepositCreditsWallet(t *testing.T) {
	wallet := ledger.NewService(ledger.NewMemoryStore())
	svc := NewService(wallet, "", "")
	ctx := context.Background()

	intent, err := svc.Create(ctx, "usr_1", "50")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
	assert.Equal(t, "50.00", intent.Amount)

	bal, err := wallet.Balance(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", bal.Available)
}

func TestDepositRejectsBadAmount(t *testing.T) {
	wallet := ledger.NewService(ledger.NewMemoryStore())
	svc := NewService(wallet, "", "")

	for _, amount := range []string{"", "0", "-5", "abc"} {
		_, err := svc.Create(context.Background(), "usr_1", amount)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "amount %q", amount)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	wallet := ledger.NewService(ledger.NewMemoryStore())
	svc := NewService(wallet, "", testWebhookSecret)

	payload := succeededIntentPayload("pi_1", "usr_1", "50.00")
	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization))

	bal, err := wallet.Balance(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Available)
}

func TestWebhookCreditsOnceAcrossRetries(t *testing.T) {
	wallet := ledger.NewService(ledger.NewMemoryStore())
	svc := NewService(wallet, "", testWebhookSecret)
	ctx := context.Background()

	payload := succeededIntentPayload("pi_retry", "usr_1", "50.00")
	sig := signPayload(payload, testWebhookSecret)

	require.NoError(t, svc.HandleWebhook(ctx, payload, sig))
	require.NoError(t, svc.HandleWebhook(ctx, payload, sig)) // Stripe redelivery

	bal, err := wallet.Balance(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", bal.Available)

	entries, err := wallet.List(ctx, ledger.Filter{UserID: "usr_1", Type: ledger.TypeDeposit})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	wallet := ledger.NewService(ledger.NewMemoryStore())
	svc := NewService(wallet, "", testWebhookSecret)

	payload := []byte(`{"id": "evt_2", "type": "payment_intent.created", "data": {"object": {}}}`)
	sig := signPayload(payload, testWebhookSecret)

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
}
