package workflow

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"github.com/sirupsen/logrus"
)

const summaryCacheTTL = 24 * time.Hour

// NewRunnerFromConfig connects the collaborators enabled in cfg. Redis is used
// whenever REDIS_ADDRESS is set. The returned close func releases connections.
func NewRunnerFromConfig(ctx context.Context, cfg *config.ReconConfig, logger *logrus.Logger, connectAttempts int) (*Runner, func(), error) {
	runner := &Runner{Logger: logger, ObjectPrefix: strings.TrimSpace(os.Getenv("GCS_RESULT_PREFIX"))}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PersistToDB {
		if err := config.ConnectDatabaseWithRetry(ctx, connectAttempts); err != nil {
			closeAll()
			return nil, nil, err
		}
		db := config.GetDB()
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
			if err := models.MigrateTable(db); err != nil {
				closeAll()
				return nil, nil, err
			}
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate")
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		runner.Runs = NewGormRunStore(db)
	}

	if err := config.ConnectRedisWithRetry(ctx, connectAttempts); err != nil {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("run locks and summary cache disabled: " + err.Error())
	} else if rdb := config.GetRedisDB(); rdb != nil {
		runner.Locker = NewRedisRunLocker(config.GetRedisLock())
		runner.Cache = NewRedisSummaryCache(summaryCacheTTL)
		closers = append(closers, func() { _ = rdb.Close() })
	}

	if cfg.UploadToGCS && utils.GetStorageProvider() == utils.StorageProviderGCS {
		runner.Uploader = NewGCSUploader(cfg.GcsBucket)
	}
	if cfg.PublishEvents {
		runner.Publisher = NewPubSubPublisher()
		closers = append(closers, func() { _ = config.ClosePubSub() })
	}

	return runner, closeAll, nil
}
