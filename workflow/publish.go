package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
)

// ObjectUploader stores the result workbook and returns where it landed.
type ObjectUploader interface {
	Upload(ctx context.Context, objectName string, data []byte) (uri string, err error)
}

type gcsUploader struct {
	bucket string
}

func NewGCSUploader(bucket string) ObjectUploader {
	return &gcsUploader{bucket: bucket}
}

func (u *gcsUploader) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	if err := utils.UploadBytesToGCS(ctx, u.bucket, objectName, data, utils.XlsxContentType); err != nil {
		return "", err
	}
	return utils.BuildObjectAccessURL(u.bucket, objectName), nil
}

type EventPublisher interface {
	Publish(ctx context.Context, msg config.RunEventMessage) (messageId string, err error)
}

type pubsubPublisher struct{}

func NewPubSubPublisher() EventPublisher {
	return pubsubPublisher{}
}

func (pubsubPublisher) Publish(ctx context.Context, msg config.RunEventMessage) (string, error) {
	return config.PublishRunEvent(ctx, msg)
}
