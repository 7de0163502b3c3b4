package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/cache"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/model"
)

const catalogProvider model.Provider = "catalog"

type CatalogClient interface {
	ListProducts(ctx context.Context) ([]*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
}

type catalogClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	cache      *cache.RedisCache
	log        *logger.Logger
}

// NewCatalogClient reads the public product catalog; productCache may be nil.
func NewCatalogClient(cfg *config.Catalog, productCache *cache.RedisCache, log *logger.Logger) CatalogClient {
	if log == nil {
		log = logger.Nop()
	}
	return &catalogClientImpl{
		httpClient: newHTTPClient(),
		baseApiURL: strings.TrimRight(cfg.BaseURL, "/"),
		cache:      productCache,
		log:        log,
	}
}

func (c *catalogClientImpl) ListProducts(ctx context.Context) ([]*model.Product, error) {
	var products []*model.Product
	if c.cached(ctx, "products", &products) {
		return products, nil
	}

	req, err := newJSONRequest(ctx, http.MethodGet, c.baseApiURL+"/products", nil)
	if err != nil {
		return nil, err
	}
	if err := doJSON(c.httpClient, catalogProvider, req, &products); err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}

	c.store(ctx, "products", products)
	return products, nil
}

func (c *catalogClientImpl) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if id <= 0 {
		return nil, apperr.Validation("product id must be positive")
	}
	key := "product:" + strconv.FormatInt(id, 10)

	var product model.Product
	if c.cached(ctx, key, &product) {
		return &product, nil
	}

	req, err := newJSONRequest(ctx, http.MethodGet, fmt.Sprintf("%s/products/%d", c.baseApiURL, id), nil)
	if err != nil {
		return nil, err
	}
	err = doJSON(c.httpClient, catalogProvider, req, &product)
	var gwErr *apperr.GatewayError
	if errors.As(err, &gwErr) && gwErr.HTTPStatus == http.StatusNotFound {
		return nil, apperr.NotFound(fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch product %d: %w", id, err)
	}
	// the mock store answers unknown ids with an empty 200
	if product.ID == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("product %d not found", id))
	}

	c.store(ctx, key, &product)
	return &product, nil
}

func (c *catalogClientImpl) cached(ctx context.Context, key string, out any) bool {
	if c.cache == nil {
		return false
	}
	err := c.cache.GetJSON(ctx, key, out)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.log.Warn(c.log.WithField(ctx, "cache_key", key), "catalog cache read failed: "+err.Error())
	}
	return false
}

func (c *catalogClientImpl) store(ctx context.Context, key string, value any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetJSON(ctx, key, value); err != nil {
		c.log.Warn(c.log.WithField(ctx, "cache_key", key), "catalog cache write failed: "+err.Error())
	}
}
