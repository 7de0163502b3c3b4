package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"
)

const (
	jupiterProvider     model.Provider = "jupiter"
	DefaultSlippageBps                 = 50
)

type JupiterClient interface {
	Quote(ctx context.Context, req *model.QuoteRequest) (*model.Quote, error)
}

type jupiterClientImpl struct {
	httpClient *http.Client
	baseApiURL string
}

func NewJupiterClient(cfg *config.Jupiter) JupiterClient {
	return &jupiterClientImpl{
		httpClient: newHTTPClient(),
		baseApiURL: strings.TrimRight(cfg.BaseApiURL, "/"),
	}
}

// Quote proxies a swap quote; upstream errors surface as GatewayError with the upstream status.
func (c *jupiterClientImpl) Quote(ctx context.Context, in *model.QuoteRequest) (*model.Quote, error) {
	slippage := in.SlippageBps
	if slippage == 0 {
		slippage = DefaultSlippageBps
	}

	q := url.Values{}
	q.Set("inputMint", in.InputMint)
	q.Set("outputMint", in.OutputMint)
	q.Set("amount", in.Amount)
	q.Set("slippageBps", strconv.Itoa(slippage))

	req, err := newJSONRequest(ctx, http.MethodGet, c.baseApiURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var quote model.Quote
	if err := doJSON(c.httpClient, jupiterProvider, req, &quote); err != nil {
		return nil, fmt.Errorf("fetch jupiter quote: %w", err)
	}
	return &quote, nil
}
