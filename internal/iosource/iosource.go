// Package iosource is the IO Source: a pipelined block reader/writer behind
// a URL-scheme driver registry (spec.md §4.3, §6).
package iosource

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a source/target URL carries a query,
// fragment, or unknown scheme (spec.md §6: "Presence of URL query/fragment/
// params is rejected").
var ErrInvalidURL = errors.New("iosource: invalid url")

// BlockRef identifies one block of the logical source by index, independent
// of any backing session (spec.md §4.3: "a detached, immutable projection").
type BlockRef struct {
	ID   int64
	Size int64
}

// Completion is what a worker hands back for a dispatched read (spec.md
// §4.3: "(block_ref, data, data_checksum)").
type Completion struct {
	Block    BlockRef
	Data     []byte
	Checksum string
}

// Source is the per-URL driver contract (spec.md §4.3).
type Source interface {
	// Size returns the logical byte length of the opened source.
	Size() int64

	// ReadBlock enqueues an asynchronous read. If sync is true the read
	// runs inline and Get is expected to return it next (used by scrub,
	// spec.md §4.3: "read returns synchronously only ... sync=True").
	ReadBlock(ref BlockRef, sync bool) error

	// Get dequeues one completed read, in any order.
	Get() (Completion, error)

	// OpenWriter prepares the source for writes up to sizeBytes, truncating
	// or creating as needed; force governs overwriting an existing target.
	OpenWriter(sizeBytes int64, force bool) error

	// WriteBlock writes data at block.ID * blockSize.
	WriteBlock(block BlockRef, blockSize int64, data []byte) error

	// Close drains any in-flight work and releases resources.
	Close() error
}

// Driver constructs a Source for a parsed URL's path component.
type Driver func(path string) (Source, error)

// Registry dispatches scheme://path URLs to registered [Driver]s.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry returns a Registry with the given scheme -> driver bindings.
func NewRegistry(drivers map[string]Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}

	for scheme, d := range drivers {
		r.drivers[scheme] = d
	}

	return r
}

// Register adds or replaces the driver for scheme.
func (r *Registry) Register(scheme string, d Driver) {
	r.drivers[scheme] = d
}

// Open parses rawURL and dispatches to the scheme's driver.
func (r *Registry) Open(rawURL string) (Source, error) {
	scheme, path, err := parseSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	driver, ok := r.drivers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrInvalidURL, scheme)
	}

	src, err := driver(path)
	if err != nil {
		return nil, fmt.Errorf("iosource: open %q: %w", rawURL, err)
	}

	return src, nil
}

func parseSourceURL(rawURL string) (scheme, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %w", ErrInvalidURL, rawURL, err)
	}

	if u.Scheme == "" {
		return "", "", fmt.Errorf("%w: %s: missing scheme", ErrInvalidURL, rawURL)
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return "", "", fmt.Errorf("%w: %s: query/fragment not allowed", ErrInvalidURL, rawURL)
	}

	path = u.Opaque
	if path == "" {
		path = u.Path
		if u.Host != "" {
			path = u.Host + path
		}
	}

	path = strings.TrimPrefix(path, "//")

	return u.Scheme, path, nil
}
