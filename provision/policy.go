package provision

import (
	"encoding/json"
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/address"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
)

const policyVersion = "2012-10-17"

// readActions are granted on a source location.
var readActions = []string{
	"s3:ListBucket",
	"s3:GetObject",
	"s3:GetObjectTagging",
	"s3:GetObjectVersion",
	"s3:GetObjectVersionTagging",
}

// writeActions are granted on a destination location.
var writeActions = []string{
	"s3:ListBucket",
	"s3:PutObject",
	"s3:PutObjectAcl",
	"s3:PutObjectTagging",
	"s3:GetObjectTagging",
	"s3:GetObjectVersion",
	"s3:GetObjectVersionTagging",
	"s3:AbortMultipartUpload",
	"s3:ListMultipartUploadParts",
}

// PolicyDocument is an IAM policy document. Unknown statement fields are
// preserved when an existing bucket policy is edited.
type PolicyDocument struct {
	Version   string            `json:"Version"`
	ID        string            `json:"Id,omitempty"`
	Statement []json.RawMessage `json:"Statement"`
}

// Statement is a single policy statement.
type Statement struct {
	Sid       string            `json:"Sid,omitempty"`
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    []string          `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
}

func actionsFor(scope domain.AccessScope) []string {
	var actions []string
	seen := make(map[string]struct{})
	add := func(list []string) {
		for _, a := range list {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				actions = append(actions, a)
			}
		}
	}
	if scope.CanRead() {
		add(readActions)
	}
	if scope.CanWrite() {
		add(writeActions)
	}
	return actions
}

func bucketARN(bucket string) string {
	return "arn:aws:s3:::" + bucket
}

// objectPattern returns the object ARN pattern an address may touch.
// Destinations include the folder and prefix they will write under.
func objectPattern(addr domain.StorageAddress, write bool) string {
	base := bucketARN(addr.Bucket) + "/"
	if write {
		if addr.Key != "" {
			return base + address.DestinationKey(addr, "", true)
		}
		return base + address.DestinationKey(addr, "", false) + "*"
	}
	if addr.Key != "" {
		return base + addr.Key
	}
	return base + addr.Prefix + "*"
}

func statementFor(addr domain.StorageAddress, scope domain.AccessScope) Statement {
	return Statement{
		Effect:   "Allow",
		Action:   actionsFor(scope),
		Resource: []string{bucketARN(addr.Bucket), objectPattern(addr, scope.CanWrite())},
	}
}

// SessionPolicy builds the inline session policy limiting an assumed role to
// scope on target.
func SessionPolicy(target domain.StorageAddress, scope domain.AccessScope) (string, error) {
	return marshalPolicy(statementFor(target, scope))
}

// CopySessionPolicy builds a session policy permitting reads on src and
// writes on dst.
func CopySessionPolicy(src, dst domain.StorageAddress) (string, error) {
	return marshalPolicy(statementFor(src, domain.ScopeRead), statementFor(dst, domain.ScopeWrite))
}

func marshalPolicy(statements ...Statement) (string, error) {
	doc := PolicyDocument{Version: policyVersion}
	for _, s := range statements {
		raw, err := json.Marshal(s)
		if err != nil {
			return "", err
		}
		doc.Statement = append(doc.Statement, raw)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// AddStatement appends a statement to a bucket policy. An empty policy is
// treated as one with no statements.
func AddStatement(policy string, stmt Statement) (string, error) {
	doc, err := parsePolicy(policy)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(stmt)
	if err != nil {
		return "", err
	}
	doc.Statement = append(doc.Statement, raw)
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// RemoveStatement drops the statement with sid from a bucket policy and
// reports how many statements remain.
func RemoveStatement(policy, sid string) (string, int, error) {
	doc, err := parsePolicy(policy)
	if err != nil {
		return "", 0, err
	}
	kept := doc.Statement[:0]
	for _, raw := range doc.Statement {
		var s struct {
			Sid string `json:"Sid"`
		}
		if err := json.Unmarshal(raw, &s); err == nil && s.Sid == sid {
			continue
		}
		kept = append(kept, raw)
	}
	doc.Statement = kept
	out, err := json.Marshal(doc)
	if err != nil {
		return "", 0, err
	}
	return string(out), len(kept), nil
}

func parsePolicy(policy string) (*PolicyDocument, error) {
	doc := &PolicyDocument{Version: policyVersion}
	if policy == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(policy), doc); err != nil {
		return nil, fmt.Errorf("parse bucket policy: %w", err)
	}
	if doc.Version == "" {
		doc.Version = policyVersion
	}
	if doc.Statement == nil {
		doc.Statement = []json.RawMessage{}
	}
	return doc, nil
}
