package push

import (
	"context"
	"encoding/json"

	"shop_backend/internal/pkg/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
	"github.com/go-faster/errors"
)

// Notification App 通知栏消息
type Notification struct {
	Title string
	Body  string
	// Ext 客户端点击后跳转所需参数，例如 orderId
	Ext map[string]string
}

type PushService interface {
	// PushToAccount 按账号推送，账号即用户ID
	PushToAccount(ctx context.Context, accountID string, n Notification) error
}

// Client 阿里云 push.Client 中用到的方法
type Client interface {
	Push(request *push.PushRequest) (*push.PushResponse, error)
}

type AliyunPushService struct {
	client Client
	appKey int64
}

func NewAliyunPushService(cfg config.PushConfig) (*AliyunPushService, error) {
	if cfg.AccessKeyID == "" || cfg.AppKey == 0 {
		return nil, errors.New("push config is missing")
	}

	client, err := push.NewClientWithAccessKey(cfg.RegionID, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "create push client")
	}
	return NewPushServiceWithClient(client, cfg.AppKey), nil
}

func NewPushServiceWithClient(client Client, appKey int64) *AliyunPushService {
	return &AliyunPushService{client: client, appKey: appKey}
}

func (s *AliyunPushService) PushToAccount(ctx context.Context, accountID string, n Notification) error {
	if accountID == "" {
		return errors.New("push target account is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	request := push.CreatePushRequest()
	request.AppKey = requests.NewInteger(int(s.appKey))
	request.Target = "ACCOUNT"
	request.TargetValue = accountID
	request.Title = n.Title
	request.Body = n.Body
	request.DeviceType = "ALL"
	request.PushType = "NOTICE"
	// 设备离线时保留，上线后补发
	request.StoreOffline = requests.NewBoolean(true)

	if len(n.Ext) > 0 {
		extJSON, err := json.Marshal(n.Ext)
		if err != nil {
			return errors.Wrap(err, "marshal ext parameters")
		}
		request.AndroidExtParameters = string(extJSON)
		request.IOSExtParameters = string(extJSON)
	}

	if _, err := s.client.Push(request); err != nil {
		return errors.Wrapf(err, "aliyun push to %s", accountID)
	}
	return nil
}
