package domain

// ProviderType identifies the storage provider behind an address.
type ProviderType string

const (
	// ProviderS3 is Amazon S3 reached through the AWS SDK.
	ProviderS3 ProviderType = "AmazonS3"

	// ProviderMinIO is an S3-compatible endpoint reached through minio-go.
	ProviderMinIO ProviderType = "MinIO"

	// ProviderFile is a local or mounted filesystem.
	ProviderFile ProviderType = "File"
)

// String returns the string representation of the ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// Remote reports whether the provider is a remote object store.
func (p ProviderType) Remote() bool {
	return p == ProviderS3 || p == ProviderMinIO
}

// AccessScope is the operation set an access grant is limited to.
type AccessScope string

const (
	// ScopeRead permits listing and reading objects.
	ScopeRead AccessScope = "READ"

	// ScopeWrite permits writing objects and managing multipart uploads.
	ScopeWrite AccessScope = "WRITE"

	// ScopeReadWrite permits both.
	ScopeReadWrite AccessScope = "READ_WRITE"
)

// String returns the string representation of the AccessScope.
func (s AccessScope) String() string {
	return string(s)
}

// CanRead reports whether the scope includes read access.
func (s AccessScope) CanRead() bool {
	return s == ScopeRead || s == ScopeReadWrite
}

// CanWrite reports whether the scope includes write access.
func (s AccessScope) CanWrite() bool {
	return s == ScopeWrite || s == ScopeReadWrite
}

// Strategy is the data movement technique chosen by the planner.
type Strategy string

const (
	// StrategySingleShot reads the whole object into a bounded buffer and writes it in one call.
	StrategySingleShot Strategy = "SINGLE_SHOT"

	// StrategyStreaming pipes the object through the process as a multipart upload.
	StrategyStreaming Strategy = "STREAMING"

	// StrategyServerSideCopy asks the provider to copy without the bytes leaving the store.
	StrategyServerSideCopy Strategy = "SERVER_SIDE_COPY"
)

// String returns the string representation of the Strategy.
func (s Strategy) String() string {
	return string(s)
}

// ChecksumAlgorithm names the content digest computed while streaming.
type ChecksumAlgorithm string

const (
	// ChecksumSHA256 is the default digest.
	ChecksumSHA256 ChecksumAlgorithm = "SHA256"

	// ChecksumCRC32C is the Castagnoli CRC32 digest.
	ChecksumCRC32C ChecksumAlgorithm = "CRC32C"
)

// String returns the string representation of the ChecksumAlgorithm.
func (c ChecksumAlgorithm) String() string {
	return string(c)
}

// SessionState is the status of a transfer session.
// Progression is monotonic; DEPROVISIONING always follows a terminal copy or
// provisioning state.
type SessionState string

const (
	// StatePending indicates the session is created but not started.
	StatePending SessionState = "PENDING"

	// StateProvisioning indicates access grants are being obtained.
	StateProvisioning SessionState = "PROVISIONING"

	// StateCopying indicates bytes are being moved.
	StateCopying SessionState = "COPYING"

	// StateCompleted indicates the copy succeeded.
	StateCompleted SessionState = "COMPLETED"

	// StateProvisioningFailed indicates no usable grant could be obtained.
	StateProvisioningFailed SessionState = "PROVISIONING_FAILED"

	// StateCopyFailed indicates the copy failed or was cancelled.
	StateCopyFailed SessionState = "COPY_FAILED"

	// StateDeprovisioning indicates grants and temporary resources are being released.
	StateDeprovisioning SessionState = "DEPROVISIONING"

	// StateDeprovisioned is the final state of every session.
	StateDeprovisioned SessionState = "DEPROVISIONED"
)

// String returns the string representation of the SessionState.
func (s SessionState) String() string {
	return string(s)
}

// IsOutcome reports whether the state is one of the three outcomes that
// lead into deprovisioning.
func (s SessionState) IsOutcome() bool {
	return s == StateCompleted || s == StateCopyFailed || s == StateProvisioningFailed
}

// EventKind classifies a progress event.
type EventKind string

const (
	// EventBytes reports cumulative bytes moved.
	EventBytes EventKind = "BYTES"

	// EventPart reports a completed part.
	EventPart EventKind = "PART"

	// EventObject reports a completed object in a multi-object transfer.
	EventObject EventKind = "OBJECT"

	// EventState reports a session state transition.
	EventState EventKind = "STATE"

	// EventDone is the final event of a session; the channel closes after it.
	EventDone EventKind = "DONE"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}
