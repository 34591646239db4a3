package payman

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrishi0102/patchpay/internal/util/cryptoutils"
)

// testEncryptionKey is 32 bytes, hex encoded.
const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func sealedKey(t *testing.T, apiKey string) string {
	t.Helper()
	sealed, err := cryptoutils.SealSecret(apiKey, testEncryptionKey)
	require.NoError(t, err)
	return sealed
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	f := NewFactory(baseURL, testEncryptionKey, 5*time.Second)
	client, err := f.MakeClient(sealedKey(t, "pm-test-secret"))
	require.NoError(t, err)
	return client
}

func TestMakeClientCredentialErrors(t *testing.T) {
	f := NewFactory("https://example.test", testEncryptionKey, 5*time.Second)

	_, err := f.MakeClient("")
	assert.ErrorIs(t, err, ErrCredential)

	_, err = f.MakeClient("not an envelope")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestCreatePayee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/payees", r.URL.Path)
		assert.Equal(t, "pm-test-secret", r.Header.Get("x-payman-api-secret"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "TEST_RAILS", payload["type"])
		assert.Equal(t, "Robin", payload["name"])

		w.Write([]byte(`{"id": "payee-123", "name": "Robin"}`))
	}))
	defer srv.Close()

	payee, err := newTestClient(t, srv.URL).CreatePayee(context.Background(), "Robin", "robin@finder.test")
	require.NoError(t, err)
	assert.Equal(t, "payee-123", payee.ID)
}

func TestSendPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/send-payment", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(250), payload["amountDecimal"])
		assert.Equal(t, "payee-123", payload["payeeId"])

		w.Write([]byte(`{"reference": "txn-42", "status": "INITIATED"}`))
	}))
	defer srv.Close()

	payment, err := newTestClient(t, srv.URL).SendPayment(context.Background(), PaymentRequest{
		Amount:  250,
		PayeeID: "payee-123",
		Memo:    "Payment for bug fix: SQL injection",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-42", payment.Reference)
}

func TestSendPaymentRejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).SendPayment(context.Background(), PaymentRequest{Amount: 1, PayeeID: "p"})
	assert.ErrorIs(t, err, ErrCredential)
}

func TestGetBalance(t *testing.T) {
	t.Run("bare number", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/balances/currencies/TSD", r.URL.Path)
			w.Write([]byte(`812.5`))
		}))
		defer srv.Close()

		balance, err := newTestClient(t, srv.URL).GetBalance(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, 812.5, balance)
	})

	t.Run("object with spendableBalance", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"spendableBalance": 100, "pendingBalance": 20}`))
		}))
		defer srv.Close()

		balance, err := newTestClient(t, srv.URL).GetBalance(context.Background(), DefaultCurrency)
		require.NoError(t, err)
		assert.Equal(t, float64(100), balance)
	})

	t.Run("unexpected shape", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`"fine"`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).GetBalance(context.Background(), DefaultCurrency)
		assert.Error(t, err)
	})
}
