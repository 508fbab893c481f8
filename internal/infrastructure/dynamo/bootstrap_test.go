package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGSI_HashOnly(t *testing.T) {
	g := gsi("user_id-index", "user_id", "")
	require.Len(t, g.KeySchema, 1)
	assert.Equal(t, "user_id", *g.KeySchema[0].AttributeName)
	assert.Equal(t, types.ProjectionTypeAll, g.Projection.ProjectionType)
}

func TestGSI_PendingIndexHasSortKey(t *testing.T) {
	g := gsi(pendingIndex, "status", "submitted_at")
	require.Len(t, g.KeySchema, 2)
	assert.Equal(t, types.KeyTypeHash, g.KeySchema[0].KeyType)
	assert.Equal(t, "submitted_at", *g.KeySchema[1].AttributeName)
	assert.Equal(t, types.KeyTypeRange, g.KeySchema[1].KeyType)
}
