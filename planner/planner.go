// Package planner decides how an object moves from a source to a destination.
//
// Planning is pure: it looks only at the two addresses, the size hint and
// the configured thresholds, and never performs I/O.
package planner

import (
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/address"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

const (
	// DefaultMultipartThreshold is the size above which streaming transfers
	// use a multipart upload.
	DefaultMultipartThreshold int64 = 8 * 1024 * 1024

	// DefaultPartSize is the default multipart part size.
	DefaultPartSize int64 = 8 * 1024 * 1024

	// MinPartSize is the smallest part S3 accepts for all but the last part.
	MinPartSize int64 = 5 * 1024 * 1024

	// MaxParts is the largest part number S3 accepts.
	MaxParts = 10000
)

// Options are the tunables a plan is derived from.
type Options struct {
	MultipartThreshold int64
	PartSize           int64
	Checksum           domain.ChecksumAlgorithm
}

// DefaultOptions returns the default planning options.
func DefaultOptions() Options {
	return Options{
		MultipartThreshold: DefaultMultipartThreshold,
		PartSize:           DefaultPartSize,
		Checksum:           domain.ChecksumSHA256,
	}
}

// Planner produces TransferPlans.
type Planner struct {
	opts Options
}

// New creates a Planner. Zero fields take their defaults.
func New(opts Options) *Planner {
	def := DefaultOptions()
	if opts.MultipartThreshold <= 0 {
		opts.MultipartThreshold = def.MultipartThreshold
	}
	if opts.PartSize <= 0 {
		opts.PartSize = def.PartSize
	}
	if opts.Checksum == "" {
		opts.Checksum = def.Checksum
	}
	return &Planner{opts: opts}
}

// Plan chooses a strategy for moving one object. sizeHint is the object size
// in bytes, or domain.SizeUnknown.
//
// Both ends being remote object stores of the same provider with the same
// endpoint override gives a server-side copy. Otherwise the bytes stream
// through the process: objects of unknown size or above the multipart
// threshold use a multipart upload, the rest a single put.
func (p *Planner) Plan(src, dst domain.StorageAddress, sizeHint int64) (domain.TransferPlan, error) {
	if err := address.Validate(src); err != nil {
		return domain.TransferPlan{}, fmt.Errorf("source: %w", err)
	}
	if err := address.Validate(dst); err != nil {
		return domain.TransferPlan{}, fmt.Errorf("destination: %w", err)
	}
	if sizeHint < domain.SizeUnknown {
		return domain.TransferPlan{}, fmt.Errorf("%w: negative size hint %d", errors.ErrInvalidAddress, sizeHint)
	}

	plan := domain.TransferPlan{
		Source:      src,
		Destination: dst,
		SizeHint:    sizeHint,
		PartSize:    p.partSize(sizeHint),
		Checksum:    p.opts.Checksum,
	}

	switch {
	case address.SameDomain(src, dst):
		plan.Strategy = domain.StrategyServerSideCopy
	case sizeHint == domain.SizeUnknown || sizeHint > p.opts.MultipartThreshold:
		plan.Strategy = domain.StrategyStreaming
	default:
		plan.Strategy = domain.StrategySingleShot
	}
	return plan, nil
}

// partSize grows the configured part size when a known object would
// otherwise need more than MaxParts parts.
func (p *Planner) partSize(sizeHint int64) int64 {
	size := p.opts.PartSize
	if size < MinPartSize {
		size = MinPartSize
	}
	if sizeHint > 0 {
		for (sizeHint+size-1)/size > MaxParts {
			size *= 2
		}
	}
	return size
}

// Options returns the effective options.
func (p *Planner) Options() Options {
	return p.opts
}

// Plan plans with the default options.
func Plan(src, dst domain.StorageAddress, sizeHint int64) (domain.TransferPlan, error) {
	return New(DefaultOptions()).Plan(src, dst, sizeHint)
}
