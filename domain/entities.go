package domain

import (
	"fmt"
	"time"
)

// StorageAddress names a storage location and, optionally, an object or prefix.
// It is immutable once a transfer starts.
type StorageAddress struct {
	// Type selects the provider.
	Type ProviderType `json:"type"`

	// Bucket is the bucket name, or the root directory for ProviderFile.
	Bucket string `json:"bucket_name"`

	// Key names a single object.
	Key string `json:"object_name,omitempty"`

	// Prefix names every object under it. Ignored when Key is set.
	Prefix string `json:"object_prefix,omitempty"`

	// Folder is prepended to destination keys.
	Folder string `json:"folder_name,omitempty"`

	// Region is the provider region.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the provider endpoint. Addresses with the same type
	// and endpoint share a provisioning domain.
	Endpoint string `json:"endpoint_override,omitempty"`

	// RoleARN is the role to assume for access, if any.
	RoleARN string `json:"role_arn,omitempty"`

	// SecretName names base credentials held in the secret store, if any.
	SecretName string `json:"key_name,omitempty"`
}

// String renders the address as a URI-like string for logs and errors.
func (a StorageAddress) String() string {
	scheme := "s3"
	switch a.Type {
	case ProviderMinIO:
		scheme = "minio"
	case ProviderFile:
		scheme = "file"
	}
	path := a.Key
	if path == "" {
		path = a.Prefix
	}
	if a.Endpoint != "" && a.Type != ProviderFile {
		return fmt.Sprintf("%s://%s/%s/%s", scheme, a.Endpoint, a.Bucket, path)
	}
	return fmt.Sprintf("%s://%s/%s", scheme, a.Bucket, path)
}

// IsPrefix reports whether the address names a set of objects.
func (a StorageAddress) IsPrefix() bool {
	return a.Key == ""
}

// WithKey returns a copy of the address naming key.
func (a StorageAddress) WithKey(key string) StorageAddress {
	a.Key = key
	a.Prefix = ""
	return a
}

// Credentials is the secret material of a grant.
type Credentials struct {
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`
}

// String redacts the secret parts.
func (c Credentials) String() string {
	if c.AccessKeyID == "" {
		return "Credentials{}"
	}
	return fmt.Sprintf("Credentials{AccessKeyID: %s, SecretAccessKey: [REDACTED], SessionToken: [REDACTED]}", c.AccessKeyID)
}

// AccessGrant is time-boxed authorization material for one storage location.
// It lives only in process memory and is owned by a single session.
type AccessGrant struct {
	// ID is the revocation handle.
	ID string `json:"id"`

	// Credentials is the secret material; empty for local filesystems.
	Credentials Credentials `json:"-"`

	// Identity is the issuing identity or assumed role.
	Identity string `json:"identity"`

	// Expiration is when the grant stops working. Zero means it does not expire.
	Expiration time.Time `json:"expiration"`

	// Scope is the operation set the grant permits.
	Scope AccessScope `json:"scope"`

	// Target is the location the grant was issued for.
	Target StorageAddress `json:"target"`

	// Revocations lists remote resources created alongside the grant that
	// release must undo, such as bucket policy statement IDs.
	Revocations []Revocation `json:"revocations,omitempty"`
}

// Revocation is a remote side effect of provisioning that release undoes.
type Revocation struct {
	// Kind identifies the resource type (e.g., "bucket-policy-statement").
	Kind string `json:"kind"`

	// Bucket is the bucket the resource lives on.
	Bucket string `json:"bucket"`

	// ID identifies the resource (e.g., the statement Sid).
	ID string `json:"id"`
}

// Expires reports whether the grant has an expiry.
func (g *AccessGrant) Expires() bool {
	return !g.Expiration.IsZero()
}

// Remaining returns the validity left at now. Non-expiring grants report the
// maximum duration.
func (g *AccessGrant) Remaining(now time.Time) time.Duration {
	if !g.Expires() {
		return time.Duration(1<<63 - 1)
	}
	return g.Expiration.Sub(now)
}

// ValidFor reports whether the grant is still valid for at least margin.
func (g *AccessGrant) ValidFor(now time.Time, margin time.Duration) bool {
	return g.Remaining(now) >= margin
}

// TransferPlan is the immutable decision of how one object moves.
type TransferPlan struct {
	Source      StorageAddress    `json:"source"`
	Destination StorageAddress    `json:"destination"`
	Strategy    Strategy          `json:"strategy"`
	SizeHint    int64             `json:"size_hint"`
	PartSize    int64             `json:"part_size"`
	Checksum    ChecksumAlgorithm `json:"checksum"`
}

// SizeUnknown is the SizeHint of an object of unknown length.
const SizeUnknown int64 = -1

// Multipart reports whether the destination write uses a multipart upload.
func (p TransferPlan) Multipart() bool {
	return p.Strategy == StrategyStreaming
}

// TransferRequest is submitted once per transfer.
type TransferRequest struct {
	// ID identifies the request; a session ID is generated when empty.
	ID string `json:"id"`

	Source      StorageAddress `json:"source"`
	Destination StorageAddress `json:"destination"`

	// Scope is the access requested on the destination; the source is always read.
	Scope AccessScope `json:"scope"`
}

// ObjectResult reports one object of a transfer.
type ObjectResult struct {
	SourceKey      string   `json:"source_key"`
	DestinationKey string   `json:"destination_key"`
	Strategy       Strategy `json:"strategy"`
	Bytes          int64    `json:"bytes"`
	Parts          int      `json:"parts"`
	Checksum       string   `json:"checksum,omitempty"`
	ETag           string   `json:"etag,omitempty"`
	Err            error    `json:"-"`

	// CleanupErrors holds failed aborts of this object's multipart upload.
	CleanupErrors []error `json:"-"`
}

// TransferResult is the single terminal report of a session.
type TransferResult struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// State is the final state machine state.
	State SessionState `json:"state"`

	// Outcome is COMPLETED, COPY_FAILED or PROVISIONING_FAILED, carried
	// through deprovisioning unchanged.
	Outcome SessionState `json:"outcome"`

	BytesTransferred int64          `json:"bytes_transferred"`
	Parts            int            `json:"parts"`
	Objects          []ObjectResult `json:"objects,omitempty"`
	Plans            []TransferPlan `json:"plans,omitempty"`

	// Err is the cause of a failed outcome.
	Err error `json:"-"`

	// CleanupErrors are secondary diagnostics from abort and release calls.
	CleanupErrors []error `json:"-"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Succeeded reports whether the outcome is COMPLETED.
func (r *TransferResult) Succeeded() bool {
	return r.Outcome == StateCompleted
}

// Transition is one entry of a session's state history.
type Transition struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
	At   time.Time    `json:"at"`
}
