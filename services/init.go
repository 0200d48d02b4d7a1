package services

import (
	"github.com/taskwell/mailroom/config"
	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/services/events"
	"github.com/taskwell/mailroom/services/executor"
	"github.com/taskwell/mailroom/services/imap"
	"github.com/taskwell/mailroom/services/ingestion"
	"github.com/taskwell/mailroom/services/rules"
	"github.com/taskwell/mailroom/services/smtp"
)

type Services struct {
	IMAPClient     interfaces.IMAPClient
	SMTPClient     interfaces.SMTPClient
	EventPublisher interfaces.EventPublisher
	RuleEngine     *rules.Engine
	Executor       *executor.Executor
	Pipeline       *ingestion.Pipeline
	Poller         *ingestion.Poller
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	imapClient := imap.NewIMAPClient(log)
	smtpClient := smtp.NewSMTPClient(log)

	var eventPublisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
		eventPublisher = publisher
	} else {
		log.Warn("RabbitMQ URL not configured, events will not be published")
	}

	ruleEngine := rules.NewEngine(rules.DefaultRegistry())

	exec := executor.NewExecutor(
		log,
		repos.TaskRepository,
		repos.IngestionRecordRepository,
		repos.ReplyTemplateRepository,
		smtpClient,
		eventPublisher,
		cfg.EngineConfig.ReplyWorkers,
	)

	pipeline := ingestion.NewPipeline(log, repos, ruleEngine, exec, eventPublisher, cfg.EngineConfig.MaxAttempts)
	poller := ingestion.NewPoller(log, cfg.EngineConfig, repos, imapClient, ruleEngine, pipeline)

	return &Services{
		IMAPClient:     imapClient,
		SMTPClient:     smtpClient,
		EventPublisher: eventPublisher,
		RuleEngine:     ruleEngine,
		Executor:       exec,
		Pipeline:       pipeline,
		Poller:         poller,
	}, nil
}
