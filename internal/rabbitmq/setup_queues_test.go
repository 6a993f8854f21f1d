package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNotificationQueues(t *testing.T) {
	queues := GetNotificationQueues()

	require.Len(t, queues, 3)

	assert.Equal(t, "notifications.transition", queues[0].QueueName)
	assert.Equal(t, RoutingKeyTransition, queues[0].RoutingKey)
	assert.Equal(t, "notifications.referral", queues[1].QueueName)
	assert.Equal(t, RoutingKeyReferral, queues[1].RoutingKey)
	assert.Equal(t, "notifications.removal", queues[2].QueueName)
	assert.Equal(t, RoutingKeyRemoval, queues[2].RoutingKey)

	// Проверка уникальности QueueName
	seen := map[string]bool{}
	for _, q := range queues {
		assert.Falsef(t, seen[q.QueueName], "duplicate queue name: %s", q.QueueName)
		seen[q.QueueName] = true
	}
}
