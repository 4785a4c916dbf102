// Package domain provides canonical type definitions for the transfer engine.
//
// This package is the foundation layer: pure data structures with JSON struct
// tags and type-safe enumerations, shared by the provisioner, planner, copy
// engine and session state machine. It has no dependencies beyond the
// standard library and contains no I/O.
//
// # Domain Model
//
//   - Addressing: StorageAddress, ProviderType
//   - Access: AccessGrant, Credentials, AccessScope
//   - Planning: TransferPlan, Strategy, ChecksumAlgorithm
//   - Execution: TransferRequest, TransferResult, ObjectResult, SessionState, Transition
//   - Reporting: ProgressEvent, EventKind
package domain
