package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"cafe-order-service/internal/cache"
	"cafe-order-service/internal/entity"
)

type RecipeSource interface {
	GetRecipe(ctx context.Context, productID int64) ([]entity.RecipeEntry, error)
}

// RecipeResolver looks up product recipes, reading through the cache when one
// is configured. Cache failures fall back to the database.
type RecipeResolver struct {
	source RecipeSource
	cache  cache.Cache
	ttl    time.Duration
}

func NewRecipeResolver(source RecipeSource, c cache.Cache, ttl time.Duration) *RecipeResolver {
	return &RecipeResolver{source: source, cache: c, ttl: ttl}
}

// Resolve returns the product's ingredients ordered by ingredient id, or an
// empty slice when the product has no recipe.
func (r *RecipeResolver) Resolve(ctx context.Context, productID int64) ([]entity.RecipeEntry, error) {
	var key string
	if r.cache != nil {
		key = r.cache.GenerateKey("recipe", strconv.FormatInt(productID, 10))
		if entries, ok := r.fromCache(ctx, key); ok {
			return entries, nil
		}
	}

	entries, err := r.source.GetRecipe(ctx, productID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting recipe for product %d", productID)
		return nil, err
	}

	if r.cache != nil {
		b, err := json.Marshal(entries)
		if err == nil {
			err = r.cache.Set(ctx, key, string(b), r.ttl)
		}
		if err != nil {
			logger.Warn().Err(err).Msgf("Error caching recipe for product %d", productID)
		}
	}
	return entries, nil
}

func (r *RecipeResolver) fromCache(ctx context.Context, key string) ([]entity.RecipeEntry, bool) {
	cached, err := r.cache.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msgf("Error reading %s from cache", key)
		return nil, false
	}
	if cached == "" {
		return nil, false
	}

	entries := []entity.RecipeEntry{}
	if err := json.Unmarshal([]byte(cached), &entries); err != nil {
		logger.Warn().Err(err).Msgf("Error unmarshalling %s", key)
		return nil, false
	}
	return entries, true
}
