package push

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	requests []*push.PushRequest
	err      error
}

func (f *fakeClient) Push(request *push.PushRequest) (*push.PushResponse, error) {
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	return &push.PushResponse{}, nil
}

func TestPushToAccount(t *testing.T) {
	client := &fakeClient{}
	svc := NewPushServiceWithClient(client, 3345)

	err := svc.PushToAccount(context.Background(), "user-1", Notification{
		Title: "Order update",
		Body:  "Your order ORD1 is now shipped",
		Ext:   map[string]string{"orderId": "ORD1"},
	})
	require.NoError(t, err)
	require.Len(t, client.requests, 1)

	req := client.requests[0]
	assert.Equal(t, "ACCOUNT", req.Target)
	assert.Equal(t, "user-1", req.TargetValue)
	assert.Equal(t, "3345", string(req.AppKey))
	var ext map[string]string
	require.NoError(t, json.Unmarshal([]byte(req.AndroidExtParameters), &ext))
	assert.Equal(t, "ORD1", ext["orderId"])
	assert.Equal(t, req.AndroidExtParameters, req.IOSExtParameters)
}

func TestPushToAccountErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("throttled")}
	svc := NewPushServiceWithClient(client, 1)

	assert.Error(t, svc.PushToAccount(context.Background(), "", Notification{}))
	assert.Empty(t, client.requests)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.PushToAccount(ctx, "user-1", Notification{}), context.Canceled)

	err := svc.PushToAccount(context.Background(), "user-1", Notification{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
