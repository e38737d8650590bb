package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReleaseClaimScriptInitialized(t *testing.T) {
	assert.NotNil(t, releaseClaimScript)
	assert.NotEmpty(t, releaseClaimScript.Hash())
}

func TestClaimKey_RejectsBadArguments(t *testing.T) {
	ctx := context.Background()

	_, _, err := ClaimKey(ctx, nil, "k", time.Second)
	assert.Error(t, err)
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisConfig{})
	assert.EqualError(t, err, "redis addr is required")
}
