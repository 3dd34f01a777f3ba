package saathi

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/saathi/config"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/gateway"
	"github.com/hupe1980/saathi/logging"
	"github.com/hupe1980/saathi/memory"
	"github.com/hupe1980/saathi/memory/sqlite"
	"github.com/hupe1980/saathi/model"
	"github.com/hupe1980/saathi/model/anthropic"
	"github.com/hupe1980/saathi/model/gemini"
	"github.com/hupe1980/saathi/model/openai"
	"github.com/hupe1980/saathi/observe"
	"github.com/hupe1980/saathi/orchestrator"
	"github.com/hupe1980/saathi/session"
	sessionredis "github.com/hupe1980/saathi/session/redis"
	"github.com/hupe1980/saathi/tool"
)

// NewLogger builds the logger selected by cfg: zap when the format is "zap",
// the slog based SaathiLogger otherwise. Both write to stderr.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	if cfg.Format == "zap" {
		return logging.NewZapLogger(level, cfg.Development)
	}
	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = cfg.Format
	lc.Output = os.Stderr
	lc.AddSource = cfg.Development
	lc.Component = "saathi"
	return logging.NewLogger(lc), nil
}

// NewModel builds the reasoning model selected by cfg.
func NewModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderMock, "":
		return model.NewMockModel(nameOr(cfg.Name, "saathi-mock")), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
		}), nil
	case config.ProviderGemini:
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = float32(cfg.Temperature)
			o.MaxOutputTokens = int32(cfg.MaxTokens)
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// Build creates a Saathi from a loaded configuration. It opens the Redis
// client, the SQLite journal and the file tool directory when configured;
// Close releases them. optFns run after the configuration is applied.
func Build(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (s *Saathi, err error) {
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	m, err := NewModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	var observer core.Observer = observe.NewLogObserver(logger)
	if cfg.Telemetry.OTel {
		otelObs, err := observe.NewOTelObserver()
		if err != nil {
			return nil, fmt.Errorf("build otel observer: %w", err)
		}
		observer = observe.Combine(observer, otelObs)
	}

	var sessions core.SessionStore
	switch cfg.Session.Backend {
	case config.SessionRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Session.Redis.Addr, err)
		}
		sessions = sessionredis.New(rdb, func(o *sessionredis.Options) {
			o.Prefix = cfg.Session.Redis.Prefix
			o.IdleTimeout = cfg.Session.IdleTimeout
		})
	default:
		sessions = session.NewInMemoryStore(func(o *session.Options) {
			o.IdleTimeout = cfg.Session.IdleTimeout
		})
	}

	var journal memory.Journal
	if cfg.Memory.Journal != "" {
		j, err := sqlite.Open(ctx, cfg.Memory.Journal, func(o *sqlite.Options) { o.Logger = logging.ForComponent(logger, "journal") })
		if err != nil {
			return nil, err
		}
		closers = append(closers, j.Close)
		journal = j
	}
	pins, _ := sessions.(memory.PinSource)
	mem := memory.New(func(o *memory.Options) {
		o.Budget = cfg.Memory.Budget
		o.Keep = cfg.Memory.Keep
		o.HalfLife = cfg.Memory.HalfLife
		o.Pins = pins
		o.Journal = journal
		o.Observer = observer
		o.Logger = logging.ForComponent(logger, "memory")
	})
	if err := mem.Restore(ctx); err != nil {
		return nil, err
	}

	var tools []tool.Tool
	if cfg.Tools.FileDir != "" {
		if err := os.MkdirAll(cfg.Tools.FileDir, 0o750); err != nil {
			return nil, fmt.Errorf("create file tool dir: %w", err)
		}
		ft, closeFile, err := tool.NewFileTool(cfg.Tools.FileDir)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closeFile)
		tools = append(tools, ft)
	}

	fns := append([]func(o *Options){func(o *Options) {
		o.Model = m
		o.Tools = tools
		o.ToolTimeout = cfg.Tools.Timeout
		o.LoopIterations = cfg.Runs.LoopIterations
		o.Observer = observer
		o.Logger = logger
		o.Gateway = func(g *gateway.Options) {
			g.Timeout = cfg.Gateway.Timeout
			g.MaxRetries = cfg.Gateway.MaxRetries
			g.InitialBackoff = cfg.Gateway.InitialBackoff
			g.MaxBackoff = cfg.Gateway.MaxBackoff
			g.RateLimit = cfg.Gateway.RateLimit
			g.Burst = cfg.Gateway.Burst
		}
		o.Orchestrator = func(r *orchestrator.Options) {
			r.MaxConcurrentRuns = cfg.Runs.MaxConcurrent
			r.MaxInferenceCalls = cfg.Runs.MaxInferenceCalls
			r.RunTimeout = cfg.Runs.Timeout
			r.Workers = cfg.Runs.Workers
			r.SessionStore = sessions
			r.MemoryStore = mem
		}
	}}, optFns...)

	s, err = New(fns...)
	if err != nil {
		return nil, err
	}
	s.closers = closers

	if cfg.Graphs != "" {
		data, err := os.ReadFile(cfg.Graphs)
		if err != nil {
			return nil, fmt.Errorf("read graphs: %w", err)
		}
		if err := s.LoadGraphs(data); err != nil {
			return nil, err
		}
	}

	logger.Info("saathi ready", "model", m.Info().Name, "session_backend", cfg.Session.Backend, "journal", cfg.Memory.Journal != "")
	return s, nil
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
