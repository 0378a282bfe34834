package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/your-org/mpf/internal/alerting"
	"github.com/your-org/mpf/internal/config"
	"github.com/your-org/mpf/internal/ledger"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/observability"
	"github.com/your-org/mpf/internal/queue"
	"github.com/your-org/mpf/internal/storage"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		observability.SetupLogger(cfg.Logging.Level, "text")
		c.config = cfg
	})
	return c.config, c.configErr
}

// services are the pieces a command works with, opened against the configured database.
type services struct {
	store  storage.Store
	alerts *alerting.Hook
	ledger *ledger.Ledger
	cfg    *config.Config
}

func (c *commandContext) withServices(ctx context.Context, fn func(*services) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	var publishers []alerting.Publisher
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer producer.Close()
		publishers = append(publishers, producer)
	}

	hook := alerting.NewHook(store, publishers...)
	return fn(&services{
		store:  store,
		alerts: hook,
		ledger: ledger.New(store, hook),
		cfg:    cfg,
	})
}

// withProducer runs fn with a NATS producer for queueing matching runs.
func (c *commandContext) withProducer(fn func(*queue.Producer) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats url is not configured")
	}
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer producer.Close()
	return fn(producer)
}

func parseMatchStatuses(raw []string) ([]models.MatchStatus, error) {
	statuses := make([]models.MatchStatus, 0, len(raw))
	for _, s := range raw {
		st, err := models.ParseMatchStatus(s)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
