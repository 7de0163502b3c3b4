package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/metrics"
	"qtc-marketplace/internal/model"
)

// GatewayClient is the contract every payment provider adapter implements.
type GatewayClient interface {
	Provider() model.Provider
	CreateOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error)
	GetStatus(ctx context.Context, orderID string) (*model.Order, error)
}

const defaultHTTPTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// doJSON sends req and decodes a 2xx JSON body into out.
// Transport failures become NETWORK_TRANSIENT, non-2xx answers a GatewayError.
func doJSON(httpClient *http.Client, provider model.Provider, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return apperr.Transient(err, fmt.Sprintf("%s request failed", provider))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transient(err, fmt.Sprintf("read %s response", provider))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.NewGatewayError(string(provider), resp.StatusCode, errorMessage(body, resp.Status))
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.CodeUpstream, err, fmt.Sprintf("decode %s response", provider))
	}
	return nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// errorMessage pulls a readable message out of an error body; providers disagree on the field name.
func errorMessage(body []byte, fallback string) string {
	var parsed struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Reason  string          `json:"reason"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Error) > 0 {
			var s string
			if json.Unmarshal(parsed.Error, &s) == nil && s != "" {
				return s
			}
			return string(parsed.Error)
		}
		if parsed.Reason != "" {
			return parsed.Reason
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > 512 {
			text = text[:512]
		}
		return text
	}
	return fallback
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05-07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func requireOrderID(provider model.Provider, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return apperr.Validation(fmt.Sprintf("%s order id is required", provider))
	}
	return nil
}

// instrumentedGateway records latency and errors for every gateway call.
type instrumentedGateway struct {
	next     GatewayClient
	recorder metrics.Recorder
}

func NewInstrumentedGateway(next GatewayClient, recorder metrics.Recorder) GatewayClient {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &instrumentedGateway{next: next, recorder: recorder}
}

func (g *instrumentedGateway) Provider() model.Provider { return g.next.Provider() }

func (g *instrumentedGateway) CreateOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	start := time.Now()
	order, err := g.next.CreateOrder(ctx, req)
	g.recorder.ObserveGatewayCall(string(g.next.Provider()), "create_order", time.Since(start), err)
	return order, err
}

func (g *instrumentedGateway) GetStatus(ctx context.Context, orderID string) (*model.Order, error) {
	start := time.Now()
	order, err := g.next.GetStatus(ctx, orderID)
	g.recorder.ObserveGatewayCall(string(g.next.Provider()), "get_status", time.Since(start), err)
	return order, err
}

// Registry resolves adapters by provider.
type Registry struct {
	gateways map[model.Provider]GatewayClient
}

func NewRegistry(gateways ...GatewayClient) *Registry {
	r := &Registry{gateways: make(map[model.Provider]GatewayClient, len(gateways))}
	for _, gw := range gateways {
		if gw != nil {
			r.gateways[gw.Provider()] = gw
		}
	}
	return r
}

var ErrUnknownProvider = errors.New("unknown payment provider")

func (r *Registry) Get(provider model.Provider) (GatewayClient, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, apperr.Wrap(apperr.CodeValidation, ErrUnknownProvider, fmt.Sprintf("payment method %q is not supported", provider))
	}
	return gw, nil
}

func (r *Registry) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(r.gateways))
	for _, p := range []model.Provider{
		model.ProviderToken, model.ProviderStripe, model.ProviderBitPay,
		model.ProviderNowPayments, model.ProviderCoinGate, model.ProviderBraintree,
	} {
		if _, ok := r.gateways[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
