// Package lockfile defines the interface-level shape of the lockfile
// manager described in spec §1/§6: the core never implements CLI argument
// parsing, lockfile JSON schema evolution, tarball download, or GitHub ref
// resolution, so this package is deliberately thin. It ties internal/nar,
// internal/tarball, and internal/pincache together into the one
// orchestration entrypoint (Pin) the collaborator actually needs from the
// core.
package lockfile

import (
	"context"
	"encoding/json"
	"io"

	"github.com/go-errors/errors"

	"github.com/lf-/nyarr/internal/nar"
	"github.com/lf-/nyarr/internal/pincache"
	"github.com/lf-/nyarr/internal/tarball"
)

// Entry is the on-disk shape of one pinned repository snapshot. The
// lockfile's JSON schema is explicitly out of scope for evolution (spec
// §1): there is exactly one shape, with no version field and no migration
// path.
type Entry struct {
	Owner     string         `json:"owner"`
	Repo      string         `json:"repo"`
	Branch    string         `json:"branch"`
	Rev       string         `json:"rev"`
	URL       string         `json:"url"`
	Sha256    string         `json:"sha256"`
	FetchedAt int64          `json:"fetchedAt"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// RefResolver resolves a branch to a concrete commit oid. Network fetching
// and `git ls-remote`-style ref resolution are explicitly out of scope for
// the core (spec §1); this interface exists only so Pin's caller can supply
// its own collaborator, grounded on the GraphQL `REPO_QUERY` resolution
// described in original_source/crates/gridlock/src/lib.rs. The core never
// implements it.
type RefResolver interface {
	ResolveRef(ctx context.Context, owner, repo, branch string) (rev string, err error)
}

// Pin resolves the SRI digest for (owner, repo, rev)'s tarball, consulting
// cache first. On a cache hit the cached Entry is returned unchanged; on a
// miss, tar is decoded with tarball.Decode and serialized into a NarHasher, the
// result is recorded into cache, and the new Entry is returned.
//
// Pin never returns a half-populated Entry: every successful call returns a
// complete Entry or a non-nil error. This is a deliberate departure from the
// Rust source's add-flow, which spec §9 notes could return early (before a
// plan was applied) leaving state uninitialized; that is flagged there as a
// defect to be aware of when porting, not a behavior to reproduce.
func Pin(
	cache *pincache.Cache,
	owner, repo, branch, rev, url string,
	fetchedAt int64,
	extra map[string]any,
	tar io.Reader,
	strip tarball.StripRoot,
) (*Entry, error) {
	if cache != nil {
		cached, err := cache.Lookup(owner, repo, rev)
		if err != nil {
			return nil, errors.WrapPrefix(err, "checking pin cache", 0)
		}
		if cached != nil {
			return rowToEntry(*cached)
		}
	}

	hasher := nar.NewHasher()
	fso, err := tarball.Decode(tar, strip)
	if err != nil {
		return nil, errors.WrapPrefix(err, "decoding tarball", 0)
	}
	if err := nar.Write(hasher, fso); err != nil {
		return nil, errors.WrapPrefix(err, "serializing nar", 0)
	}

	entry := &Entry{
		Owner:     owner,
		Repo:      repo,
		Branch:    branch,
		Rev:       rev,
		URL:       url,
		Sha256:    hasher.Digest(),
		FetchedAt: fetchedAt,
		Extra:     extra,
	}

	if cache != nil {
		extraJSON, err := json.Marshal(extra)
		if err != nil {
			return nil, errors.WrapPrefix(err, "marshaling pin extras", 0)
		}
		err = cache.Record(pincache.Row{
			Owner:     owner,
			Repo:      repo,
			Rev:       rev,
			Branch:    branch,
			URL:       url,
			Sha256:    entry.Sha256,
			FetchedAt: fetchedAt,
			ExtraJSON: string(extraJSON),
		})
		if err != nil {
			return nil, errors.WrapPrefix(err, "recording pin", 0)
		}
	}

	return entry, nil
}

func rowToEntry(r pincache.Row) (*Entry, error) {
	var extra map[string]any
	if r.ExtraJSON != "" {
		if err := json.Unmarshal([]byte(r.ExtraJSON), &extra); err != nil {
			return nil, errors.WrapPrefix(err, "unmarshaling cached pin extras", 0)
		}
	}
	return &Entry{
		Owner:     r.Owner,
		Repo:      r.Repo,
		Branch:    r.Branch,
		Rev:       r.Rev,
		URL:       r.URL,
		Sha256:    r.Sha256,
		FetchedAt: r.FetchedAt,
		Extra:     extra,
	}, nil
}
