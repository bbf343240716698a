package daemon

import (
	"context"

	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/kafka"
	"github.com/dashbridge/creditbridge/util/retry"
)

// getKafkaCreditsAsyncProducer creates the async producer for deposit credit
// events using the configuration from settings. Configuration problems fail
// fast; broker connection is retried so the daemon survives Kafka coming up
// after it does.
func getKafkaCreditsAsyncProducer(ctx context.Context, logger ulogger.Logger,
	tSettings *settings.Settings) (*kafka.KafkaAsyncProducer, error) {
	cfg, err := kafka.ProducerConfigFromSettings(tSettings)
	if err != nil {
		return nil, err
	}

	return retry.Retry(ctx, logger, func() (*kafka.KafkaAsyncProducer, error) {
		return kafka.NewKafkaAsyncProducer(logger, cfg)
	}, retry.Bind(retry.ConservativePolicy(), retry.WithMessage("[Daemon] error connecting to kafka"))...)
}
