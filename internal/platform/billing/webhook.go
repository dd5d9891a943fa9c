package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultTolerance is the maximum accepted age of a signed webhook.
const DefaultTolerance = 5 * time.Minute

// Webhook event types the service reacts to.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

var (
	ErrMissingSignature = errors.New("billing: missing signature")
	ErrInvalidSignature = errors.New("billing: signature mismatch")
	ErrStaleSignature   = errors.New("billing: signature timestamp outside tolerance")
)

// Event is a parsed webhook event. Object is the event's data.object.
type Event struct {
	ID     string
	Type   string
	Object gjson.Result
}

// Verifier checks Stripe-Signature headers.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for the endpoint signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: DefaultTolerance, now: time.Now}
}

// Verify checks header against payload. Any v1 signature may match, which
// allows secret rotation.
func (v *Verifier) Verify(payload []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}
	var (
		timestamp  int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return ErrMissingSignature
	}

	signedAt := time.Unix(timestamp, 0)
	if age := v.now().Sub(signedAt); age > v.tolerance || age < -v.tolerance {
		return ErrStaleSignature
	}

	expected := Sign(v.secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the v1 signature for payload at timestamp.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a Stripe-Signature header value.
func SignatureHeader(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign(secret, ts, payload))
}

// ParseEvent extracts the event envelope.
func ParseEvent(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return Event{}, errors.New("billing: event payload is not valid JSON")
	}
	root := gjson.ParseBytes(payload)
	ev := Event{
		ID:     root.Get("id").String(),
		Type:   root.Get("type").String(),
		Object: root.Get("data.object"),
	}
	if ev.Type == "" || !ev.Object.Exists() {
		return Event{}, errors.New("billing: event is missing type or data.object")
	}
	return ev, nil
}

// CheckoutCompletion is the part of a completed checkout session the service needs.
type CheckoutCompletion struct {
	UserID         string
	CustomerID     string
	SubscriptionID string
}

// CheckoutFromObject reads a checkout.session object.
func CheckoutFromObject(obj gjson.Result) CheckoutCompletion {
	userID := obj.Get("client_reference_id").String()
	if userID == "" {
		userID = obj.Get("metadata.user_id").String()
	}
	return CheckoutCompletion{
		UserID:         userID,
		CustomerID:     obj.Get("customer").String(),
		SubscriptionID: obj.Get("subscription").String(),
	}
}
