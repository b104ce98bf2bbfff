// imageprovider.go: Package imageprovider resolves bird image references and attribution
// from the image cache table maintained by the capture pipeline. It never fetches
// images from the network; rows missing from the table simply mean no image.
package imageprovider

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// Package-level logger specific to image lookups
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	// Define log file path relative to working directory
	logFilePath := filepath.Join("logs", "imageprovider.log")
	initialLevel := slog.LevelDebug // Set desired initial level
	serviceLevelVar.Set(initialLevel)

	// Initialize the service-specific file logger
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "imageprovider", serviceLevelVar)
	if err != nil {
		// Fallback: Log error to standard log and potentially disable service logging
		log.Printf("FATAL: Failed to initialize imageprovider file logger at %s: %v. Service logging disabled.", logFilePath, err)
		// Set logger to a disabled handler to prevent nil panics, but respects level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "imageprovider")
		closeLogger = func() error { return nil } // No-op closer
	}
}

// ErrImageNotFound is returned when no cached image exists for a species.
var ErrImageNotFound = errors.Newf("no cached image for species").
	Component("imageprovider").
	Category(errors.CategoryNotFound).
	Build()

const (
	// defaultCacheTTL bounds how long a resolved image stays in memory before
	// the store is consulted again.
	defaultCacheTTL = 60 * time.Minute

	// negativeCacheTTL bounds how long a known-missing species is remembered,
	// so repeated detections of an uncached species do not hammer the store.
	negativeCacheTTL = 15 * time.Minute
)

// BirdImage represents a cached bird image with its attribution metadata.
type BirdImage struct {
	URL            string
	ScientificName string
	LicenseName    string
	LicenseURL     string
	AuthorName     string
	AuthorURL      string
	CachedAt       time.Time
	SourceProvider string
}

// Attribution returns a single-line attribution string suitable for a
// notification footer. Author names stored by some providers carry HTML
// markup, which is flattened to plain text first. Anchor tags keep their
// inner text so a linked author renders as the name, not the URL.
func (img *BirdImage) Attribution() string {
	author := strings.TrimSpace(html2text.HTML2TextWithOptions(img.AuthorName, html2text.WithLinksInnerText()))
	license := strings.TrimSpace(img.LicenseName)

	switch {
	case author != "" && license != "":
		return fmt.Sprintf("© %s / %s", author, license)
	case author != "":
		return fmt.Sprintf("© %s", author)
	case license != "":
		return license
	default:
		return ""
	}
}

// negativeEntry marks a species known to have no cached image.
type negativeEntry struct{}

// BirdImageCache resolves species images from the datastore with an
// in-memory TTL cache in front of it.
type BirdImageCache struct {
	store    datastore.Interface
	cache    *cache.Cache
	provider string
	debug    bool
	metrics  *metrics.ImageProviderMetrics
}

// New creates a BirdImageCache backed by the given datastore. The preferred
// provider and cache TTL come from the image settings; a nil metrics
// instance disables metric recording.
func New(settings *conf.Settings, store datastore.Interface, m *metrics.ImageProviderMetrics) *BirdImageCache {
	ttl := defaultCacheTTL
	if settings.Images.CacheTTLMinutes > 0 {
		ttl = time.Duration(settings.Images.CacheTTLMinutes) * time.Minute
	}

	return &BirdImageCache{
		store:    store,
		cache:    cache.New(ttl, ttl*2),
		provider: settings.Images.Provider,
		debug:    settings.Debug,
		metrics:  m,
	}
}

// Get returns the cached image for a species, consulting the in-memory cache
// first and the datastore on a miss. It returns ErrImageNotFound when the
// species has no image row; any other error means the store could not answer.
func (c *BirdImageCache) Get(ctx context.Context, scientificName string) (BirdImage, error) {
	if scientificName == "" {
		return BirdImage{}, errors.Newf("scientific name is required").
			Component("imageprovider").
			Category(errors.CategoryValidation).
			Build()
	}

	if cached, found := c.cache.Get(scientificName); found {
		if c.metrics != nil {
			c.metrics.IncrementCacheHits()
			c.metrics.SetCacheSize(c.cache.ItemCount())
		}
		if _, missing := cached.(negativeEntry); missing {
			return BirdImage{}, ErrImageNotFound
		}
		if img, ok := cached.(*BirdImage); ok {
			return *img, nil
		}
	}

	if c.metrics != nil {
		c.metrics.IncrementCacheMisses()
	}

	img, err := c.lookup(ctx, scientificName)
	if err != nil {
		return BirdImage{}, err
	}

	c.cache.Set(scientificName, img, cache.DefaultExpiration)
	if c.metrics != nil {
		c.metrics.SetCacheSize(c.cache.ItemCount())
	}
	return *img, nil
}

// lookup consults the datastore for an image row, preferring the configured
// provider and falling back to the freshest row from any provider.
func (c *BirdImageCache) lookup(ctx context.Context, scientificName string) (*BirdImage, error) {
	start := time.Now()
	row, err := c.store.GetImageCache(ctx, scientificName, c.provider)
	if c.metrics != nil {
		c.metrics.IncrementStoreLookups()
		c.metrics.ObserveLookupDuration(time.Since(start).Seconds())
	}

	if err != nil {
		if isNotFound(err) {
			// Remember the absence briefly so repeated detections of the
			// same species do not turn into repeated store queries.
			c.cache.Set(scientificName, negativeEntry{}, negativeCacheTTL)
			if c.debug {
				logger.Debug("no cached image for species",
					"scientific_name", scientificName,
					"provider", c.provider)
			}
			return nil, ErrImageNotFound
		}
		if c.metrics != nil {
			c.metrics.IncrementLookupErrors()
		}
		logger.Error("image lookup failed",
			"scientific_name", scientificName,
			"provider", c.provider,
			"error", err)
		return nil, err
	}

	img := &BirdImage{
		URL:            row.URL,
		ScientificName: row.ScientificName,
		LicenseName:    row.LicenseName,
		LicenseURL:     row.LicenseURL,
		AuthorName:     row.AuthorName,
		AuthorURL:      row.AuthorURL,
		CachedAt:       row.CachedAt,
		SourceProvider: row.ProviderName,
	}

	if c.debug {
		logger.Debug("resolved image from store",
			"scientific_name", scientificName,
			"source_provider", img.SourceProvider,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return img, nil
}

// isNotFound reports whether err marks a missing image row rather than a
// store failure.
func isNotFound(err error) bool {
	var enhancedErr *errors.EnhancedError
	if errors.As(err, &enhancedErr) {
		return enhancedErr.Category == errors.CategoryNotFound
	}
	return false
}

// Close releases the package log file handle. It is safe to call more than once.
func Close() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
