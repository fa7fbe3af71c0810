package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tokopay.db", "tokopay.db?_txlock=immediate&_busy_timeout=5000"},
		{"file:tokopay.db?_foreign_keys=on", "file:tokopay.db?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"},
		{"file:x.db?_busy_timeout=100", "file:x.db?_busy_timeout=100&_txlock=immediate"},
		{"file:x.db?_txlock=deferred&_busy_timeout=100", "file:x.db?_txlock=deferred&_busy_timeout=100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteDSN(tt.in), tt.in)
	}
}
