// Package internal contains private implementation details for the S3 store.
//
//   - s3api: the subset of the S3 client the endpoint calls
//   - testutil: function-field mocks, response builders and an in-process
//     fake S3 server for tests
package internal
