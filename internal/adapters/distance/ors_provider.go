package distance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/obs"
	"route-optimizer-service/internal/ports"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.openrouteservice.org"
	defaultProfile     = "driving-car"
	geocodeConcurrency = 4
)

type ORSConfig struct {
	APIKey  string
	BaseURL string
	Profile string
	// RatePerMin caps outgoing requests per minute. Zero or less disables the limit.
	RatePerMin int
}

// ORSProvider implements DistanceMatrixProvider and RouteProvider on top of
// OpenRouteService.
//
// It coordinates:
//   - Provider reference normalization ("lon,lat" pairs are used as-is)
//   - Persistent geocode caching
//   - Persistent pairwise distance caching
//   - Client-side rate limiting and retry/backoff
//   - Classification of failures into *domain.ProviderError
//
// The provider is safe for concurrent use.
type ORSProvider struct {
	session      *http.Client
	apiKey       string
	baseURL      string
	profile      string
	limiter      *rate.Limiter
	retryBackoff time.Duration
	logger       *zap.Logger

	distanceCache ports.DistanceCache
	geocodeCache  ports.GeocodeCache
}

// NewORSProvider builds the adapter. Either cache may be nil.
func NewORSProvider(
	cfg ORSConfig,
	distanceCache ports.DistanceCache,
	geocodeCache ports.GeocodeCache,
	logger *zap.Logger,
) (*ORSProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = defaultProfile
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60), cfg.RatePerMin)
	}

	return &ORSProvider{
		session:       &http.Client{Timeout: 10 * time.Second},
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		profile:       cfg.Profile,
		limiter:       limiter,
		retryBackoff:  200 * time.Millisecond,
		logger:        logger.With(zap.String("provider", "ors")),
		distanceCache: distanceCache,
		geocodeCache:  geocodeCache,
	}, nil
}

// normalize ensures consistent cache keys by collapsing whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// locate resolves every stop to coordinates, in stop order. References that
// parse as "lon,lat" skip geocoding; the rest go through the geocode cache and
// then /geocode/search.
func (o *ORSProvider) locate(ctx context.Context, stops []domain.Stop) (_ []domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.locate")(&err)

	out := make([]domain.Coordinates, len(stops))
	pending := make(map[string][]int)

	for i, s := range stops {
		ref := normalize(s.ProviderRef)
		if ref == "" {
			return nil, &domain.ProviderError{
				Kind:    domain.ErrorKindInvalidLocation,
				Message: fmt.Sprintf("stop %q has no provider reference", s.ID),
			}
		}

		c, ok, perr := domain.ParseCoordinates(ref)
		if perr != nil {
			return nil, &domain.ProviderError{Kind: domain.ErrorKindInvalidLocation, Message: perr.Error(), Err: perr}
		}
		if ok {
			out[i] = c
			continue
		}
		pending[ref] = append(pending[ref], i)
	}

	if len(pending) == 0 {
		return out, nil
	}

	addresses := make([]string, 0, len(pending))
	for a := range pending {
		addresses = append(addresses, a)
	}

	hits := make(map[string]domain.Coordinates)
	// Resolve coordinates via cache before calling ORS geocoding.
	if o.geocodeCache != nil {
		cached, err := o.geocodeCache.GetMany(ctx, addresses)
		if err != nil {
			o.logger.Warn("geocode cache read failed", zap.Error(err))
		} else {
			hits = cached
		}
	}

	misses := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := hits[a]; !ok {
			misses = append(misses, a)
		}
	}

	if len(misses) > 0 {
		fresh, err := o.geocodeMany(ctx, misses)
		if err != nil {
			return nil, err
		}

		if o.geocodeCache != nil {
			if err := o.geocodeCache.PutMany(ctx, fresh); err != nil {
				o.logger.Warn("geocode cache write failed", zap.Error(err))
			}
		}

		for k, v := range fresh {
			hits[k] = v
		}
	}

	for a, idxs := range pending {
		c, ok := hits[a]
		if !ok {
			return nil, &domain.ProviderError{
				Kind:    domain.ErrorKindInvalidLocation,
				Message: fmt.Sprintf("missing coordinate for %q", a),
			}
		}
		for _, i := range idxs {
			out[i] = c
		}
	}

	return out, nil
}
