// Package catalog serves product reads through the cache-aside path and
// owns cache invalidation for catalog keys.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mdemidkin1992/intershop/api"
	"github.com/mdemidkin1992/intershop/cache"
	"github.com/mdemidkin1992/intershop/store"
)

// Store is the slice of the store adapter the catalog needs.
type Store interface {
	GetProduct(ctx context.Context, id int64) (store.ProductRow, error)
	SearchProducts(ctx context.Context, search string, sort store.SortOrder, pageNumber, pageSize int) ([]store.ProductRow, int64, error)
	CreateProduct(ctx context.Context, title, description, imgPath string, price decimal.Decimal, stock int) (store.ProductRow, error)
	UpdateStock(ctx context.Context, productID int64, newStock int) (store.ProductRow, error)
}

// Coordinator serializes cache population against invalidation per key.
type Coordinator interface {
	Snapshot(key string) uint64
	Populate(key string, observed uint64, write func()) bool
	Invalidate(key string, evict func())
}

// epochKey is the coordinator key whose generation versions every listing
// page key. Bumping it orphans all cached pages at once; they expire by TTL.
const epochKey = "catalog"

// snapshot is the envelope stored in the cache. NotFound entries are
// negative cache markers with a short TTL.
type snapshot struct {
	NotFound bool         `json:"not_found,omitempty"`
	Product  *api.Product `json:"product,omitempty"`
}

// Options tune cache behaviour; zero values fall back to defaults.
type Options struct {
	TTL             time.Duration // product and page entries, default 1m
	NegativeTTL     time.Duration // not-found markers, default 5s
	PopulateTimeout time.Duration // budget for a detached cache write, default 2s
	DefaultPageSize int           // default 10
}

// Service implements the catalog read path.
type Service struct {
	store    Store
	cache    cache.Cache
	keys     Coordinator
	ttl      time.Duration
	negTTL   time.Duration
	popTime  time.Duration
	pageSize int
}

func New(st Store, c cache.Cache, keys Coordinator, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = 5 * time.Second
	}
	if opts.PopulateTimeout <= 0 {
		opts.PopulateTimeout = 2 * time.Second
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	return &Service{
		store:    st,
		cache:    c,
		keys:     keys,
		ttl:      opts.TTL,
		negTTL:   opts.NegativeTTL,
		popTime:  opts.PopulateTimeout,
		pageSize: opts.DefaultPageSize,
	}
}

func productKey(id int64) string { return fmt.Sprintf("product:%d", id) }

func (s *Service) pageKey(search string, sort api.SortType, pageNumber, pageSize int) string {
	epoch := s.keys.Snapshot(epochKey)
	return fmt.Sprintf("catalog:v%d:q=%s&sort=%s&page=%d&size=%d", epoch, search, sort, pageNumber, pageSize)
}

// GetProduct serves the product from the cache when possible and falls back
// to the store on miss or cache failure. The store result is written back to
// the cache off the critical path.
func (s *Service) GetProduct(ctx context.Context, id int64) (*api.Product, error) {
	key := productKey(id)

	if b, err := s.cache.Get(ctx, key); err == nil {
		var snap snapshot
		if jsonErr := json.Unmarshal(b, &snap); jsonErr == nil {
			if snap.NotFound {
				return nil, store.ErrNotFound
			}
			if snap.Product != nil {
				return snap.Product, nil
			}
		}
		log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("cache unavailable, falling back to store")
	}

	observed := s.keys.Snapshot(key)
	row, err := s.getProductWithRetry(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.populateAsync(ctx, key, key, observed, snapshot{NotFound: true}, s.negTTL)
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p := toProduct(row)
	s.populateAsync(ctx, key, key, observed, snapshot{Product: &p}, s.ttl)
	return &p, nil
}

// getProductWithRetry retries one transient store failure with a short
// backoff, then surfaces the failure as ErrStoreUnavailable.
func (s *Service) getProductWithRetry(ctx context.Context, id int64) (store.ProductRow, error) {
	row, err := s.store.GetProduct(ctx, id)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return row, err
	}
	log.Warn().Err(err).Int64("product_id", id).Msg("store read failed, retrying once")
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return store.ProductRow{}, ctx.Err()
	}
	row, err = s.store.GetProduct(ctx, id)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return row, err
	}
	return store.ProductRow{}, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
}

// searchWithRetry retries one transient store failure with a short backoff,
// then surfaces the failure as ErrStoreUnavailable.
func (s *Service) searchWithRetry(ctx context.Context, search string, sort store.SortOrder, pageNumber, pageSize int) ([]store.ProductRow, int64, error) {
	rows, total, err := s.store.SearchProducts(ctx, search, sort, pageNumber, pageSize)
	if err == nil {
		return rows, total, nil
	}
	log.Warn().Err(err).Str("search", search).Msg("store search failed, retrying once")
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
	rows, total, err = s.store.SearchProducts(ctx, search, sort, pageNumber, pageSize)
	if err == nil {
		return rows, total, nil
	}
	return nil, 0, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
}

// SearchProducts serves one listing page through the cache. Page keys embed
// the catalog epoch, so invalidation orphans every cached page at once.
func (s *Service) SearchProducts(ctx context.Context, search string, sort api.SortType, pageNumber, pageSize int) (*api.ProductPage, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = s.pageSize
	}
	key := s.pageKey(search, sort, pageNumber, pageSize)

	if b, err := s.cache.Get(ctx, key); err == nil {
		var page api.ProductPage
		if jsonErr := json.Unmarshal(b, &page); jsonErr == nil {
			return &page, nil
		}
		log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("cache unavailable, falling back to store")
	}

	observed := s.keys.Snapshot(epochKey)
	rows, total, err := s.searchWithRetry(ctx, search, store.SortOrder(sort), pageNumber, pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]api.Product, 0, len(rows))
	for _, r := range rows {
		items = append(items, toProduct(r))
	}
	page := &api.ProductPage{
		Items:       items,
		Search:      search,
		Sort:        sort,
		PageNumber:  pageNumber,
		PageSize:    pageSize,
		Total:       total,
		HasNext:     int64(pageNumber)*int64(pageSize) < total,
		HasPrevious: pageNumber > 1,
	}
	s.populateAsync(ctx, key, epochKey, observed, page, s.ttl)
	return page, nil
}

// CreateProduct writes through to the store and invalidates the catalog so
// listings and a possible negative entry for the id pick up the new product.
func (s *Service) CreateProduct(ctx context.Context, req api.CreateProductRequest) (*api.Product, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title required")
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price must be >= 0")
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("stock must be >= 0")
	}
	row, err := s.store.CreateProduct(ctx, req.Title, req.Description, req.ImgPath, req.Price, req.Stock)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, row.ID)
	p := toProduct(row)
	return &p, nil
}

// Restock sets the absolute stock of a product and invalidates its cache
// entries.
func (s *Service) Restock(ctx context.Context, productID int64, newStock int) (*api.Product, error) {
	if newStock < 0 {
		return nil, fmt.Errorf("stock must be >= 0")
	}
	row, err := s.store.UpdateStock(ctx, productID, newStock)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, productID)
	p := toProduct(row)
	return &p, nil
}

// Invalidate removes the product's cache entry and orphans the cached
// listing pages. It never repopulates; the next read does, lazily. Calling
// it again for the same product is a harmless no-op against cache state.
func (s *Service) Invalidate(ctx context.Context, productID int64) {
	key := productKey(productID)
	dctx := context.WithoutCancel(ctx)
	s.keys.Invalidate(key, func() {
		cctx, cancel := context.WithTimeout(dctx, s.popTime)
		defer cancel()
		if err := s.cache.Delete(cctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		}
	})
	s.keys.Invalidate(epochKey, nil)
}

// populateAsync writes the payload to the cache off the caller's critical
// path. The write is gated on gateKey's generation: if an invalidation has
// landed since the store read, the stale payload is dropped. The dispatched
// write runs to completion even if the caller's request is cancelled.
func (s *Service) populateAsync(ctx context.Context, key, gateKey string, observed uint64, payload any, ttl time.Duration) {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("marshal cache payload")
		return
	}
	dctx := context.WithoutCancel(ctx)
	go func() {
		cctx, cancel := context.WithTimeout(dctx, s.popTime)
		defer cancel()
		wrote := s.keys.Populate(gateKey, observed, func() {
			if err := s.cache.Set(cctx, key, b, ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("cache populate failed")
			}
		})
		if !wrote {
			log.Debug().Str("key", key).Msg("skipped stale cache populate")
		}
	}()
}

func toProduct(r store.ProductRow) api.Product {
	p := api.Product{
		ID:      r.ID,
		Title:   r.Title,
		Price:   r.Price,
		Stock:   r.Stock,
		Version: r.Version,
	}
	if r.Description.Valid {
		p.Description = r.Description.String
	}
	if r.ImgPath.Valid {
		p.ImgPath = r.ImgPath.String
	}
	return p
}
