// Package secrets reads storage credentials from AWS Secrets Manager.
//
// The client wraps the AWS SDK v2 `secretsmanager` service to provide:
//   - GetSecret for raw secret values
//   - GetToken for credential tokens stored as JSON
//   - Pluggable caching via the `Cache` interface and `InMemoryCache`
//   - Consistent, security-conscious error handling with typed errors
//
// Two token shapes are recognised. A long-lived key pair:
//
//	{"accessKeyId": "...", "secretAccessKey": "..."}
//
// and a temporary token whose expiration is given in epoch milliseconds:
//
//	{"accessKeyId": "...", "secretAccessKey": "...", "sessionToken": "...", "expiration": 1735689600000}
//
// Security considerations
//
//   - The package never logs secret values; only metadata like secret names
//   - Typed errors (`ErrSecretNotFound`, `ErrSecretEmpty`, `ErrAccessDenied`,
//     `ErrMalformedToken`) avoid leaking sensitive details while remaining actionable
//   - The only IAM permission required is `secretsmanager:GetSecretValue`, plus
//     `kms:Decrypt` when the secret uses a customer-managed key
//
// # Thread safety
//
// All exported client methods are safe for concurrent use by multiple goroutines.
// Retries are not performed here; callers decorate calls with the retry package.
package secrets
