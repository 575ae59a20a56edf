package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCreated_Payload(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	evt := OrderCreated("e1", "o1", "u1", at, "552.541", "upi", []OrderCreatedLine{
		{ItemID: "rice", Quantity: 2, UnitPrice: "120.5"},
	})

	assert.Equal(t, EventOrderCreated, evt.Type)
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "o1", back["order_id"])
	payload := back["payload"].(map[string]any)
	assert.Equal(t, "552.541", payload["total"])
	items := payload["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "rice", items[0].(map[string]any)["item_id"])
}

func TestCartCleared(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	evt := CartCleared("e2", "o1", "u1", at)
	assert.Equal(t, EventOrderClearedCart, evt.Type)
	assert.Equal(t, "u1", evt.UserID)
	assert.Empty(t, evt.Payload)
}
