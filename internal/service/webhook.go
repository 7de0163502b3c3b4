package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/metrics"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/repository"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const nowPaymentsSignatureHeader = "x-nowpayments-sig"

type WebhookService interface {
	HandleNowPayments(ctx context.Context, headers http.Header, body []byte) error
	HandleCoinGate(ctx context.Context, contentType string, body []byte) error
	HandleStripe(ctx context.Context, headers http.Header, body []byte) error
	HandleBitPay(ctx context.Context, body []byte) error
}

type webhookServiceImpl struct {
	checkout         CheckoutService
	webhookEventRepo repository.WebhookEventRepository
	nowPaymentsCfg   *config.NowPayments
	stripeCfg        *config.Stripe
	recorder         metrics.Recorder
	log              *logger.Logger
}

func NewWebhookService(
	checkout CheckoutService,
	webhookEventRepo repository.WebhookEventRepository,
	nowPaymentsCfg *config.NowPayments,
	stripeCfg *config.Stripe,
	recorder metrics.Recorder,
	log *logger.Logger,
) WebhookService {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &webhookServiceImpl{
		checkout:         checkout,
		webhookEventRepo: webhookEventRepo,
		nowPaymentsCfg:   nowPaymentsCfg,
		stripeCfg:        stripeCfg,
		recorder:         recorder,
		log:              log,
	}
}

// process runs apply once per (provider, eventID).
func (s *webhookServiceImpl) process(ctx context.Context, provider model.Provider, eventID, eventType string, apply func(ctx context.Context) error) error {
	ctx = s.log.WithFields(ctx, map[string]any{
		"provider":   string(provider),
		"event_id":   eventID,
		"event_type": eventType,
	})

	seen, err := s.webhookEventRepo.Exists(ctx, provider, eventID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if seen {
		s.recorder.IncWebhook(string(provider), "duplicate")
		s.log.Debug(ctx, "webhook event already processed")
		return nil
	}

	if err := apply(ctx); err != nil {
		s.recorder.IncWebhook(string(provider), "error")
		return err
	}

	if err := s.webhookEventRepo.MarkProcessed(ctx, provider, eventID, eventType); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	s.recorder.IncWebhook(string(provider), "processed")
	s.log.Info(ctx, "webhook event processed")
	return nil
}

// confirm re-reads the status from the gateway, falling back to the merchant reference.
func (s *webhookServiceImpl) confirm(ctx context.Context, provider model.Provider, orderID, reference string) error {
	if orderID != "" {
		_, err := s.checkout.Confirm(ctx, orderID)
		if err == nil || !apperr.IsCode(err, apperr.CodeNotFound) || reference == "" {
			return err
		}
	}
	if reference == "" {
		return apperr.Validation("notification carries no order id")
	}
	_, err := s.checkout.ConfirmByReference(ctx, provider, reference)
	return err
}

func (s *webhookServiceImpl) HandleNowPayments(ctx context.Context, headers http.Header, body []byte) error {
	verified := false
	if secret := s.nowPaymentsCfg.IPNSecret; secret != "" {
		if err := verifyNowPaymentsSignature(body, secret, headers.Get(nowPaymentsSignatureHeader)); err != nil {
			return err
		}
		verified = true
	}

	var payment model.NowPaymentsPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return apperr.Validation("decode nowpayments notification: " + err.Error())
	}
	if payment.PaymentID == "" {
		return apperr.Validation("nowpayments notification without payment_id")
	}

	eventID := payment.PaymentID.String() + ":" + string(payment.PaymentStatus)
	return s.process(ctx, model.ProviderNowPayments, eventID, string(payment.PaymentStatus), func(ctx context.Context) error {
		if !verified {
			return s.confirm(ctx, model.ProviderNowPayments, payment.PaymentID.String(), payment.OrderID)
		}
		_, err := s.checkout.Reconcile(ctx, client.NowPaymentsOrder(&payment))
		return err
	})
}

// verifyNowPaymentsSignature checks the HMAC-SHA512 of the body re-serialized with sorted keys.
func verifyNowPaymentsSignature(body []byte, secret, signature string) error {
	if signature == "" {
		return apperr.Validation("missing nowpayments signature")
	}
	sorted, err := sortedJSON(body)
	if err != nil {
		return apperr.Validation("decode nowpayments notification: " + err.Error())
	}
	if !hmac.Equal([]byte(signNowPayments(sorted, secret)), []byte(strings.ToLower(signature))) {
		return apperr.Validation("invalid nowpayments signature")
	}
	return nil
}

func signNowPayments(payload []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// sortedJSON re-encodes body with object keys in lexical order and numbers untouched.
// This is not byte-identical to JSON.stringify of the parsed payload: U+2028 and U+2029
// come out as \u2028 and \u2029, and numbers keep the text they arrived with (1.50
// stays 1.50). An IPN hit by either is rejected and the order settles through polling.
func sortedJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (s *webhookServiceImpl) HandleCoinGate(ctx context.Context, contentType string, body []byte) error {
	order, err := decodeCoinGateCallback(contentType, body)
	if err != nil {
		return err
	}
	if order.ID == "" && order.OrderID == "" {
		return apperr.Validation("coingate callback without order id")
	}

	eventID := order.ID.String() + ":" + string(order.Status)
	return s.process(ctx, model.ProviderCoinGate, eventID, string(order.Status), func(ctx context.Context) error {
		return s.confirm(ctx, model.ProviderCoinGate, order.ID.String(), order.OrderID)
	})
}

// decodeCoinGateCallback accepts the form-encoded callback and its JSON variant.
func decodeCoinGateCallback(contentType string, body []byte) (*model.CoinGateOrder, error) {
	var order model.CoinGateOrder
	if strings.HasPrefix(strings.ToLower(contentType), "application/json") {
		if err := json.Unmarshal(body, &order); err != nil {
			return nil, apperr.Validation("decode coingate callback: " + err.Error())
		}
		return &order, nil
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperr.Validation("decode coingate callback: " + err.Error())
	}
	order.ID = model.FlexString(form.Get("id"))
	order.OrderID = form.Get("order_id")
	order.Status = model.CoinGateStatus(form.Get("status"))
	order.PriceCurrency = form.Get("price_currency")
	order.PayCurrency = form.Get("pay_currency")
	order.Token = form.Get("token")
	return &order, nil
}

func (s *webhookServiceImpl) HandleStripe(ctx context.Context, headers http.Header, body []byte) error {
	if s.stripeCfg.WebhookSecret == "" {
		return apperr.Configuration("Stripe webhook secret not configured")
	}
	signature := headers.Get("Stripe-Signature")
	if signature == "" {
		return apperr.Validation("stripe signature missing")
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, s.stripeCfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return apperr.Validation("verify stripe signature: " + err.Error())
	}

	return s.process(ctx, model.ProviderStripe, event.ID, string(event.Type), func(ctx context.Context) error {
		var failed bool
		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted,
			stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
			stripe.EventTypeCheckoutSessionExpired:
		case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			failed = true
		default:
			s.log.Debug(ctx, "ignoring stripe event")
			return nil
		}

		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return apperr.Validation("decode stripe checkout session: " + err.Error())
		}
		update := client.StripeOrder(&sess)
		if failed {
			update.Status = "payment_failed"
			update.Outcome = model.OutcomeFailed
		}
		_, err := s.checkout.Reconcile(ctx, update)
		return err
	})
}

func (s *webhookServiceImpl) HandleBitPay(ctx context.Context, body []byte) error {
	var notification model.BitPayNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return apperr.Validation("decode bitpay notification: " + err.Error())
	}
	invoice := notification.Data
	eventType := notification.Event.Name
	if invoice.ID == "" {
		// legacy notifications post the invoice itself
		if err := json.Unmarshal(body, &invoice); err != nil {
			return apperr.Validation("decode bitpay notification: " + err.Error())
		}
	}
	if invoice.ID == "" {
		return apperr.Validation("bitpay notification without invoice id")
	}
	if eventType == "" {
		eventType = string(invoice.Status)
	}

	return s.process(ctx, model.ProviderBitPay, invoice.ID+":"+eventType, eventType, func(ctx context.Context) error {
		return s.confirm(ctx, model.ProviderBitPay, invoice.ID, invoice.OrderID)
	})
}
