package validation

import (
	"github.com/sirupsen/logrus"

	"github.com/dynaput247/holochain-sub000/src/chain"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/dht"
)

// PackageCacheSize bounds the built-package LRU. Rebuilding is always
// possible, so eviction only costs time.
const PackageCacheSize = 500

// Package is the chain context bundled with an entry for validation. Which
// fields are populated depends on the entry type's declared package type.
type Package struct {
	Header       *core.ChainHeader   `json:"header"`
	ChainHeaders []*core.ChainHeader `json:"chain_headers,omitempty"`
	ChainEntries []*core.Entry       `json:"chain_entries,omitempty"`
}

// AuthorFetcher asks the network for a validation package from the entry's
// original author.
type AuthorFetcher interface {
	FetchValidationPackage(header *core.ChainHeader) (*Package, error)
}

// PackageBuilder attempts the three package construction strategies in
// order: local construction, from-author fetch, DHT reconstruction. A
// strategy's failure is non-fatal to the ones after it.
type PackageBuilder struct {
	agentIdentity string
	chain         *chain.SourceChain
	fetcher       AuthorFetcher
	dhtStore      *dht.Store
	cache         *common.LRU
	logger        *logrus.Entry
}

// NewPackageBuilder wires a builder. fetcher and dhtStore may be nil, which
// disables their strategies.
func NewPackageBuilder(agentIdentity string, c *chain.SourceChain, fetcher AuthorFetcher, dhtStore *dht.Store, logger *logrus.Entry) *PackageBuilder {
	return &PackageBuilder{
		agentIdentity: agentIdentity,
		chain:         c,
		fetcher:       fetcher,
		dhtStore:      dhtStore,
		cache:         common.NewLRU(PackageCacheSize, nil),
		logger:        logger,
	}
}

// Build assembles the validation package for an entry per its declared
// package type. Only if every strategy fails does it return an
// UnresolvedDependencies error, routing the entry into pending validation.
func (b *PackageBuilder) Build(header *core.ChainHeader, packageType core.PackageType) (*Package, error) {
	// Header-only packages never need any further context.
	if packageType == core.PackageEntry {
		return &Package{Header: header}, nil
	}

	cacheKey := string(header.Address()) + "/" + string(packageType)
	if cached, ok := b.cache.Get(cacheKey); ok {
		return cached.(*Package), nil
	}

	if pkg, err := b.buildLocal(header, packageType); err == nil {
		b.cache.Add(cacheKey, pkg)
		return pkg, nil
	} else {
		b.logger.WithField("error", err.Error()).Debug("Local validation package construction failed")
	}

	if b.fetcher != nil {
		if pkg, err := b.fetcher.FetchValidationPackage(header); err == nil && pkg != nil {
			b.cache.Add(cacheKey, pkg)
			return pkg, nil
		} else if err != nil {
			b.logger.WithField("error", err.Error()).Debug("Author validation package fetch failed")
		}
	}

	if pkg, err := b.buildFromDht(header, packageType); err == nil {
		b.cache.Add(cacheKey, pkg)
		return pkg, nil
	} else {
		b.logger.WithField("error", err.Error()).Debug("DHT validation package reconstruction failed")
	}

	return nil, Unresolved(header.EntryAddress)
}

// buildLocal serves packages for entries authored by the local agent, read
// straight off the local chain.
func (b *PackageBuilder) buildLocal(header *core.ChainHeader, packageType core.PackageType) (*Package, error) {
	authored := false
	for _, prov := range header.Provenances {
		if prov.Source == b.agentIdentity {
			authored = true
			break
		}
	}
	if !authored {
		return nil, Infra("local agent is not the author")
	}
	if b.chain == nil {
		return nil, Infra("no local chain")
	}

	pkg := &Package{Header: header}
	headers, err := b.chain.Headers()
	if err != nil {
		return nil, Infra(err.Error())
	}
	if packageType == core.PackageChainHeaders || packageType == core.PackageChainFull {
		pkg.ChainHeaders = headers
	}
	if packageType == core.PackageChainEntries || packageType == core.PackageChainFull {
		for _, h := range headers {
			entry, err := b.chain.Entry(h)
			if err != nil {
				return nil, Infra(err.Error())
			}
			pkg.ChainEntries = append(pkg.ChainEntries, entry)
		}
	}
	return pkg, nil
}

// buildFromDht reconstructs an approximate package by walking the headers
// published for this entry on the DHT. It cannot see the author's full
// chain, so the package covers only what was published.
func (b *PackageBuilder) buildFromDht(header *core.ChainHeader, packageType core.PackageType) (*Package, error) {
	if b.dhtStore == nil {
		return nil, Infra("no DHT store")
	}
	headers, err := b.dhtStore.HeadersForEntry(header.EntryAddress)
	if err != nil {
		return nil, Infra(err.Error())
	}
	if len(headers) == 0 {
		return nil, Infra("no published headers for entry")
	}

	pkg := &Package{Header: header}
	if packageType == core.PackageChainHeaders || packageType == core.PackageChainFull {
		pkg.ChainHeaders = headers
	}
	if packageType == core.PackageChainEntries || packageType == core.PackageChainFull {
		for _, h := range headers {
			content, found, err := b.dhtStore.ContentStorage().Fetch(h.EntryAddress)
			if err != nil || !found {
				continue
			}
			entry, err := core.EntryFromContent(content)
			if err != nil {
				continue
			}
			pkg.ChainEntries = append(pkg.ChainEntries, entry)
		}
	}
	return pkg, nil
}
