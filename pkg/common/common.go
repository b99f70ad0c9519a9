package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cast"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var idNode *snowflake.Node

func init() {
	var err error
	idNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a new snowflake id.
func UUIDint64() int64 {
	return idNode.Generate().Int64()
}

// UUID returns a new snowflake id in base58 string form.
func UUID() string {
	return idNode.Generate().Base58()
}

// Sha256HashWithSalt computes a salted sha256 hex digest.
func Sha256HashWithSalt(src string, salt string) string {
	h := sha256.New()
	h.Write([]byte(src + salt))
	return hex.EncodeToString(h.Sum(nil))
}

// GetSecretSalt reads the secret salt from the environment, falling back
// to a fixed development value.
func GetSecretSalt() string {
	salt := os.Getenv("WACONSOLE_SECRET_SALT")
	if salt == "" {
		salt = "waconsole-secret"
	}
	return salt
}

// IsEmptyOrNA reports whether a string carries no useful value.
func IsEmptyOrNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "n/a")
}

// Int64Value parses a string id, returning 0 on failure.
func Int64Value(s string) int64 {
	return cast.ToInt64(s)
}

// MustLocalTime parses a timestamp in RFC3339 or unix-milliseconds form.
func MustLocalTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	ms, err := cast.ToInt64E(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
