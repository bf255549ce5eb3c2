package domain

import "strings"

// DefaultRegion is used when a request omits the region and no other default
// was configured at startup.
const DefaultRegion = "ap-south-1"

// Credentials are the caller's AWS keys for a single request. They are never
// persisted and never written to logs.
type Credentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region,omitempty"`
}

// Complete reports whether both keys are present.
func (c *Credentials) Complete() bool {
	return c != nil && strings.TrimSpace(c.AccessKeyID) != "" && strings.TrimSpace(c.SecretAccessKey) != ""
}

// WithDefaultRegion returns a copy with region filled in when empty.
func (c Credentials) WithDefaultRegion(region string) Credentials {
	if strings.TrimSpace(c.Region) != "" {
		return c
	}
	if strings.TrimSpace(region) == "" {
		region = DefaultRegion
	}
	c.Region = region
	return c
}

// String redacts the secret so credentials can never leak through %v.
func (c Credentials) String() string {
	return "Credentials{AccessKeyID:" + maskKey(c.AccessKeyID) + ", Region:" + c.Region + "}"
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return "****" + k[len(k)-4:]
}

// Identity is the caller identity resolved from a set of credentials.
type Identity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"user_id"`
}
