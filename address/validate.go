package address

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Validate checks that an address is well formed for its provider.
// Bucket names follow the S3 DNS naming rules; keys and prefixes must not
// contain control characters or traverse out of their root.
func Validate(addr domain.StorageAddress) error {
	switch addr.Type {
	case domain.ProviderS3, domain.ProviderMinIO:
		if err := ValidateBucketName(addr.Bucket); err != nil {
			return err
		}
	case domain.ProviderFile:
		if addr.Bucket == "" || !path.IsAbs(filepath.ToSlash(addr.Bucket)) {
			return invalid("root directory must be an absolute path", addr.Bucket)
		}
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnsupportedProvider, addr.Type)
	}

	if addr.Key != "" {
		if err := ValidateObjectKey(addr.Key); err != nil {
			return err
		}
	}
	if addr.Prefix != "" {
		if hasControlCharacters(addr.Prefix) || hasPathTraversal(addr.Prefix) {
			return invalid("prefix contains control characters or traversal sequences", addr.Prefix)
		}
	}
	if addr.Folder != "" && (hasControlCharacters(addr.Folder) || hasPathTraversal(addr.Folder)) {
		return invalid("folder contains control characters or traversal sequences", addr.Folder)
	}
	return nil
}

// ValidateBucketName validates that a bucket name is DNS-compliant according to S3 rules.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return invalid("bucket name cannot be empty", bucket)
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return invalid("bucket name must be between 3 and 63 characters long", bucket)
	}
	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return invalid("bucket name can only contain lowercase letters, numbers, dots, and hyphens", bucket)
		}
	}
	first, last := bucket[0], bucket[len(bucket)-1]
	if first == '-' || first == '.' || last == '-' || last == '.' {
		return invalid("bucket name cannot start or end with a hyphen or dot", bucket)
	}
	if isIPAddress(bucket) {
		return invalid("bucket name cannot be formatted as an IP address", bucket)
	}
	if strings.Contains(bucket, "..") || strings.Contains(bucket, ".-") || strings.Contains(bucket, "-.") {
		return invalid("bucket name cannot contain adjacent periods", bucket)
	}
	return nil
}

// ValidateObjectKey validates that an object key is valid according to S3 rules.
func ValidateObjectKey(key string) error {
	if key == "" {
		return invalid("object key cannot be empty", key)
	}
	if hasPathTraversal(key) {
		return invalid("object key cannot contain path traversal sequences", key)
	}
	if len(key) > 1024 {
		return invalid("object key cannot exceed 1024 characters", key)
	}
	if hasControlCharacters(key) {
		return invalid("object key cannot contain control characters", key)
	}
	return nil
}

func invalid(msg, value string) error {
	return fmt.Errorf("%w: %s: %q", errors.ErrInvalidAddress, msg, value)
}

func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// isIPAddress checks if a string is formatted as an IPv4 address
func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		num := 0
		for _, char := range part {
			if char < '0' || char > '9' {
				return false
			}
			num = num*10 + int(char-'0')
		}
		if num > 255 {
			return false
		}
	}
	return true
}

func hasPathTraversal(key string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(key), "/") {
		if segment == ".." {
			return true
		}
	}
	if strings.HasPrefix(key, "/") {
		return true
	}
	// Windows-style absolute paths
	return len(key) >= 3 && key[1] == ':' && (key[2] == '\\' || key[2] == '/')
}

func hasControlCharacters(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
