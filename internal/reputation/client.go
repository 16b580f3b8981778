// Package reputation queries the CIRCL hashlookup service for the trust
// score of file hashes. Results are cached persistently and remote calls
// are rate limited and retried.
package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"fim-go/internal/model"
)

const (
	DefaultEndpoint    = "https://hashlookup.circl.lu"
	DefaultTimeout     = 3 * time.Second
	DefaultConcurrency = 8
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 50 * time.Millisecond
	DefaultMemoSize    = 4096
)

// UnexpectedStatusError is returned when the service kept answering with a
// status other than 200 or 404.
type UnexpectedStatusError struct {
	Status int
	Hash   model.Hash
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("invalid response %d for hash %s", e.Status, e.Hash)
}

// NetworkError wraps a transport failure, a timeout or an unreadable body.
type NetworkError struct {
	Hash model.Hash
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("lookup of %s: %v", e.Hash, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CacheError reports a failed read or write of the persistent cache.
type CacheError struct {
	Op   string // "lookup" or "insert"
	Hash model.Hash
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s of %s: %v", e.Op, e.Hash, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Store persists lookup results between runs.
type Store interface {
	Lookup(hash model.Hash) (*model.CacheEntry, error)
	Insert(hash model.Hash, entry model.CacheEntry) error
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Endpoint    string
	Timeout     time.Duration // per request
	Concurrency int           // simultaneous remote lookups
	MaxAttempts int
	RetryDelay  time.Duration // delay before attempt n+1 is RetryDelay*n
	MemoSize    int
	HTTPClient  *http.Client
	Now         func() time.Time
	Logger      *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	o.Endpoint = strings.TrimRight(o.Endpoint, "/")
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MemoSize <= 0 {
		o.MemoSize = DefaultMemoSize
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Client resolves hashes against the cache first and the remote service
// second. It is safe for concurrent use.
type Client struct {
	store   Store
	opts    Options
	permits *semaphore.Weighted
	flight  singleflight.Group
	memo    *lru.Cache[model.Hash, model.CacheEntry]
}

// New creates a Client over store.
func New(store Store, opts Options) (*Client, error) {
	opts.applyDefaults()
	memo, err := lru.New[model.Hash, model.CacheEntry](opts.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("creating memo: %w", err)
	}
	return &Client{
		store:   store,
		opts:    opts,
		permits: semaphore.NewWeighted(int64(opts.Concurrency)),
		memo:    memo,
	}, nil
}

// Query returns the trust score of hash. found is false when the service
// does not know the hash. A cached result is returned without contacting
// the service, however old it is.
func (c *Client) Query(ctx context.Context, hash model.Hash) (uint8, bool, error) {
	if e, ok := c.memo.Get(hash); ok {
		return e.Score, e.Found, nil
	}

	cached, err := c.store.Lookup(hash)
	if err != nil {
		return 0, false, &CacheError{Op: "lookup", Hash: hash, Err: err}
	}
	if cached != nil {
		c.memo.Add(hash, *cached)
		return cached.Score, cached.Found, nil
	}

	v, err, _ := c.flight.Do(hash.String(), func() (any, error) {
		return c.fetch(ctx, hash)
	})
	if err != nil {
		return 0, false, err
	}
	e := v.(model.CacheEntry)
	return e.Score, e.Found, nil
}

func (c *Client) fetch(ctx context.Context, hash model.Hash) (model.CacheEntry, error) {
	if err := c.permits.Acquire(ctx, 1); err != nil {
		return model.CacheEntry{}, &NetworkError{Hash: hash, Err: err}
	}
	defer c.permits.Release(1)

	url := fmt.Sprintf("%s/lookup/sha256/%s", c.opts.Endpoint, hash)
	entry, err := backoff.Retry(ctx, func() (model.CacheEntry, error) {
		return c.request(ctx, url, hash)
	},
		backoff.WithBackOff(&linearBackOff{step: c.opts.RetryDelay}),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.opts.Logger.Error("lookup failed, retrying", zap.String("url", url), zap.Duration("delay", d), zap.Error(err))
		}),
	)
	if err != nil {
		var status *UnexpectedStatusError
		var network *NetworkError
		if !errors.As(err, &status) && !errors.As(err, &network) {
			err = &NetworkError{Hash: hash, Err: err}
		}
		return model.CacheEntry{}, err
	}

	if err := c.store.Insert(hash, entry); err != nil {
		return model.CacheEntry{}, &CacheError{Op: "insert", Hash: hash, Err: err}
	}
	c.memo.Add(hash, entry)
	return entry, nil
}

type lookupResponse struct {
	Trust uint8 `json:"hashlookup:trust"`
}

// request performs one attempt. Retryable failures are returned as is;
// failures that a retry cannot fix are marked permanent.
func (c *Client) request(ctx context.Context, url string, hash model.Hash) (model.CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.CacheEntry{}, backoff.Permanent(&NetworkError{Hash: hash, Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return model.CacheEntry{}, &NetworkError{Hash: hash, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body lookupResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return model.CacheEntry{}, backoff.Permanent(&NetworkError{Hash: hash, Err: fmt.Errorf("decoding response: %w", err)})
		}
		return model.NewFoundEntry(body.Trust, c.opts.Now()), nil
	case http.StatusNotFound:
		return model.NewNotFoundEntry(c.opts.Now()), nil
	default:
		return model.CacheEntry{}, &UnexpectedStatusError{Status: resp.StatusCode, Hash: hash}
	}
}

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
