// Package address parses, validates and derives storage addresses.
package address

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Parse converts a URI into a StorageAddress.
//
// Accepted forms:
//
//	s3://bucket/key            single object
//	s3://bucket/prefix/        every object under prefix
//	minio://host:port/bucket/key
//	file:///root/dir/name      single file under /root/dir
//	file:///root/dir/          every file under /root/dir
//
// A path ending in "/" (or naming only a bucket) is a prefix.
func Parse(raw string) (domain.StorageAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return domain.StorageAddress{}, fmt.Errorf("%w: %s: %v", errors.ErrInvalidAddress, raw, err)
	}

	var addr domain.StorageAddress
	switch strings.ToLower(u.Scheme) {
	case "s3":
		addr.Type = domain.ProviderS3
		addr.Bucket = u.Host
		setObject(&addr, strings.TrimPrefix(u.Path, "/"))
	case "minio":
		addr.Type = domain.ProviderMinIO
		addr.Endpoint = u.Host
		bucket, rest, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		addr.Bucket = bucket
		setObject(&addr, rest)
	case "file":
		addr.Type = domain.ProviderFile
		p := u.Path
		if strings.HasSuffix(p, "/") {
			addr.Bucket = path.Clean(p)
			break
		}
		addr.Bucket = path.Dir(p)
		addr.Key = path.Base(p)
	default:
		return domain.StorageAddress{}, fmt.Errorf("%w: unsupported scheme %q", errors.ErrUnsupportedProvider, u.Scheme)
	}

	if q := u.Query(); len(q) > 0 {
		addr.Region = q.Get("region")
		addr.Folder = q.Get("folder")
		addr.RoleARN = q.Get("role")
		addr.SecretName = q.Get("secret")
		if ep := q.Get("endpoint"); ep != "" {
			addr.Endpoint = ep
		}
	}

	if err := Validate(addr); err != nil {
		return domain.StorageAddress{}, err
	}
	return addr, nil
}

func setObject(addr *domain.StorageAddress, p string) {
	if p == "" || strings.HasSuffix(p, "/") {
		addr.Prefix = p
		return
	}
	addr.Key = p
}

// DestinationKey derives the destination object key for sourceKey.
//
// An explicit destination key is used as-is for single-object transfers.
// Otherwise the source key is placed under the destination prefix and then
// under the destination folder, joined with "/" unless the folder already
// ends with one.
func DestinationKey(dst domain.StorageAddress, sourceKey string, single bool) string {
	if single && dst.Key != "" {
		return withFolder(dst.Folder, dst.Key)
	}
	key := sourceKey
	if dst.Prefix != "" {
		key = joinKey(dst.Prefix, sourceKey)
	}
	return withFolder(dst.Folder, key)
}

func withFolder(folder, key string) string {
	if folder == "" {
		return key
	}
	return joinKey(folder, key)
}

func joinKey(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// SameDomain reports whether two addresses are reachable from the same
// provisioning domain: both remote object stores of one provider type with
// the same endpoint override.
func SameDomain(a, b domain.StorageAddress) bool {
	if !a.Type.Remote() || a.Type != b.Type {
		return false
	}
	return strings.TrimSuffix(a.Endpoint, "/") == strings.TrimSuffix(b.Endpoint, "/")
}
