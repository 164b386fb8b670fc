package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.0", "main", "0123456789abcdef", "2026-10-01", "linux/amd64")
	t.Cleanup(func() { SetVersion("0.0.0", "unknown", "unknown", "unknown", "") })

	v := GetVersion()
	assert.Equal(t, "1.2.0.main.0123456.2026-10-01.linux/amd64", v.Str)
	assert.Equal(t, "0123456789abcdef", v.Details.Commit)

	SetVersion("", "dev", "", "", "")
	assert.Equal(t, "1.2.0", GetVersion().Details.Version)
	assert.Equal(t, "dev", GetVersion().Details.Branch)
}
