// Package fetch loads layer source documents over http or from the local
// file system and keeps them in a short-lived cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dualview/dualview/mods/logging"
	"github.com/jellydator/ttlcache/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

var ErrStatus = errors.New("unexpected status")

var (
	metricHits   = gometrics.NewRegisteredCounter("fetch.cache.hits", gometrics.DefaultRegistry)
	metricMisses = gometrics.NewRegisteredCounter("fetch.cache.misses", gometrics.DefaultRegistry)
	metricBytes  = gometrics.NewRegisteredCounter("fetch.bytes", gometrics.DefaultRegistry)
)

// maximum accepted document size
const maxDocumentSize = 32 << 20

type Fetcher struct {
	log    logging.Log
	client *http.Client
	ttl    time.Duration
	cache  *ttlcache.Cache[string, []byte]
}

type Option func(f *Fetcher)

func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) { f.ttl = ttl }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithLogger(l logging.Log) Option {
	return func(f *Fetcher) { f.log = l }
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ttl:    time.Minute,
	}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = logging.GetLog("fetch")
	}
	f.cache = ttlcache.New(
		ttlcache.WithTTL[string, []byte](f.ttl),
		ttlcache.WithCapacity[string, []byte](256),
	)
	go f.cache.Start()
	return f
}

// Close stops the cache expiration loop.
func (f *Fetcher) Close() {
	f.cache.Stop()
}

// Fetch returns the document at location: an http(s) url, a file:// url
// or a local path.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if item := f.cache.Get(location, ttlcache.WithDisableTouchOnHit[string, []byte]()); item != nil {
		metricHits.Inc(1)
		return item.Value(), nil
	}
	metricMisses.Inc(1)

	var doc []byte
	var err error
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		doc, err = f.get(ctx, location)
	case strings.HasPrefix(location, "file://"):
		u, perr := url.Parse(location)
		if perr != nil {
			return nil, perr
		}
		doc, err = readFile(u.Path)
	default:
		doc, err = readFile(location)
	}
	if err != nil {
		f.log.Warnf("fetch %s, %s", location, err.Error())
		return nil, err
	}
	metricBytes.Inc(int64(len(doc)))
	f.cache.Set(location, doc, ttlcache.DefaultTTL)
	f.log.Debugf("fetch %s, %d bytes", location, len(doc))
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	rsp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrStatus, rsp.Status)
	}
	return io.ReadAll(io.LimitReader(rsp.Body, maxDocumentSize))
}

func readFile(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if st.Size() > maxDocumentSize {
		return nil, fmt.Errorf("%s is too large, %d bytes", path, st.Size())
	}
	return os.ReadFile(path)
}

// Invalidate drops a cached document.
func (f *Fetcher) Invalidate(location string) {
	f.cache.Delete(location)
}
