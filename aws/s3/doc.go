// Package s3 implements the transfer store for Amazon S3 on top of AWS SDK v2.
//
// An Endpoint addresses one bucket. It signs every request with the session's
// access grant, looked up at time of use so that a grant close to expiry is
// replaced before the SDK sends with it. The SDK's own retryer is disabled;
// retries happen one level up where they can be logged and counted per
// operation.
//
// Key features:
//   - Single-shot and multipart writes with SHA256 or CRC32C checksums
//   - Server-side CopyObject and UploadPartCopy between buckets
//   - Paginated listing that skips folder markers
//   - Optional bucket creation for destinations
//
// Example usage:
//
//	factory := s3.NewFactory(s3.WithAWSConfig(cfg))
//	ep, err := factory.Open(ctx, addr, lease)
//	if err != nil {
//	    return err
//	}
//	info, err := ep.Stat(ctx, "path/file.txt")
package s3
