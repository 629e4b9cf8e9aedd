package rediskey

import "fmt"

const (
	SequencePrefix    = "seq"
	LicenseCodePrefix = "LIC"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}"
func BuildDailySequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}

// BuildLicenseSequenceKey returns "seq:LIC:{yymmdd}"
func BuildLicenseSequenceKey(day string) string {
	return BuildDailySequenceKey(LicenseCodePrefix, day)
}
