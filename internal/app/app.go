package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobarin/reelsmith/internal/config"
	"github.com/bobarin/reelsmith/internal/db"
	"github.com/bobarin/reelsmith/internal/jobs"
	"github.com/bobarin/reelsmith/internal/metrics"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/pipeline"
	"github.com/bobarin/reelsmith/internal/queue"
	"github.com/bobarin/reelsmith/internal/services"
	"github.com/bobarin/reelsmith/internal/storage"
	"github.com/bobarin/reelsmith/internal/worker"
)

const memoryQueueCapacity = 256

// Per-call duration ceilings in seconds. 0 means any duration.
var maxDurations = map[models.ProviderID]float64{
	models.ProviderRunway:    services.RunwayMaxDurationSec,
	models.ProviderStability: services.StabilityMaxDurationSec,
	models.ProviderVeo:       services.VeoMaxDurationSec,
	models.ProviderXAI:       services.XAIVideoMaxDurationSec,
	models.ProviderPexels:    0,
}

// App is the fully wired service.
type App struct {
	Config       *config.Config
	Registry     *pipeline.Registry
	Selector     *pipeline.Selector
	Executor     *pipeline.Executor
	Planner      pipeline.Planner
	Tracker      *jobs.Tracker
	Orchestrator *pipeline.Orchestrator
	Queue        queue.Queue
	Submitter    *worker.Submitter // nil when the worker is disabled
	Worker       *worker.Worker    // nil when the worker is disabled
	Metrics      *metrics.Collector // nil when disabled

	database *db.DB
}

// Build connects the backends and wires the pipeline.
func Build(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Registry: pipeline.NewRegistry(), Planner: pipeline.NewPlanner()}

	table := pipeline.DefaultSuitabilityTable()
	if cfg.SuitabilityTablePath != "" {
		loaded, err := pipeline.LoadSuitabilityTable(cfg.SuitabilityTablePath)
		if err != nil {
			return nil, err
		}
		table = loaded
		log.Printf("Loaded suitability table from %s", cfg.SuitabilityTablePath)
	}
	a.Selector = pipeline.NewSelector(a.Registry, table)

	var trackerOpts []jobs.Option
	var executorOpts []pipeline.ExecutorOption
	if cfg.MetricsEnabled {
		a.Metrics = metrics.NewCollector(prometheus.NewRegistry())
		trackerOpts = append(trackerOpts, jobs.WithListener(a.Metrics))
		executorOpts = append(executorOpts, pipeline.WithAttemptObserver(a.Metrics))
	}

	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(context.Background()); err != nil {
			database.Close()
			return nil, err
		}
		a.database = database
		trackerOpts = append(trackerOpts, jobs.WithListener(db.NewAuditListener(database)))
		log.Println("Job audit log enabled")
	}

	a.Executor = pipeline.NewExecutor(a.Registry, cfg.ProviderTimeout, executorOpts...)
	a.Tracker = jobs.NewTracker(jobs.NewMemoryStore(), trackerOpts...)

	ffmpegSvc := services.NewFFmpegService()

	if err := RegisterProviders(a.Registry, cfg); err != nil {
		a.Close()
		return nil, err
	}
	assembler := pipeline.NewHybridAssembler(a.Registry, a.Selector, a.Executor, ffmpegSvc, cfg.SegmentConcurrency)
	if err := RegisterHybrid(a.Registry, cfg, pipeline.NewHybridProvider(a.Planner, assembler)); err != nil {
		a.Close()
		return nil, err
	}

	// Publisher stays a nil interface when storage is not configured.
	var publisher pipeline.Publisher
	if cfg.PublishEnabled() {
		publisher = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		log.Printf("Publishing artifacts to Supabase bucket %s", cfg.SupabaseStorageBucket)
	}

	enhancer := pipeline.NewEnhancer(ffmpegSvc, pipeline.NewVoiceoverStage(a.Selector, a.Executor, ffmpegSvc))
	a.Orchestrator = pipeline.NewOrchestrator(a.Selector, a.Executor, enhancer, a.Tracker, publisher, filepath.Join(cfg.WorkDir, "reelsmith-jobs"))

	if cfg.RedisURL != "" {
		q, err := queue.NewRedisQueue(cfg.RedisURL, queue.RenderQueueName(cfg.InstanceID))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
		log.Printf("Connected to Redis queue %s", queue.RenderQueueName(cfg.InstanceID))
	} else {
		a.Queue = queue.NewMemoryQueue(memoryQueueCapacity)
		log.Println("Using in-process job queue")
	}

	// Job status lives in this process, so only a process that runs the
	// worker accepts jobs.
	if cfg.WorkerEnabled {
		a.Submitter = worker.NewSubmitter(a.Tracker, a.Queue)
		a.Worker = worker.New(a.Queue, a.Orchestrator, a.Tracker)
	} else {
		log.Println("WARNING: Worker disabled, job submission is turned off")
	}
	return a, nil
}

// Close releases the backend connections.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}

// RegisterProviders registers every leaf provider. Providers without
// credentials are registered unconfigured so they still show in listings.
func RegisterProviders(registry *pipeline.Registry, cfg *config.Config) error {
	creds := cfg.ProviderCredentials()
	poll := services.PollConfig{MaxAttempts: cfg.PollMaxAttempts, Interval: cfg.PollInterval}

	openaiSvc := services.NewOpenAIService(cfg.OpenAIKey)
	geminiSvc := services.NewGeminiService(cfg.GeminiKey)

	entries := []struct {
		id         models.ProviderID
		capability models.Capability
		client     func() services.ProviderClient
	}{
		// Video generation
		{models.ProviderRunway, models.CapabilityVideoFromText, func() services.ProviderClient { return services.NewRunwayService(cfg.RunwayKey) }},
		{models.ProviderStability, models.CapabilityVideoFromText, func() services.ProviderClient { return services.NewStabilityService(cfg.StabilityKey) }},
		{models.ProviderPexels, models.CapabilityVideoFromText, func() services.ProviderClient { return services.NewPexelsService(cfg.PexelsKey) }},
		{models.ProviderXAI, models.CapabilityVideoFromText, func() services.ProviderClient { return services.NewXAIVideoService(cfg.XAIAPIKey, poll) }},
		{models.ProviderVeo, models.CapabilityVideoFromText, func() services.ProviderClient { return services.NewVeoService(cfg.GeminiKey, cfg.VeoModel) }},

		// Voice synthesis
		{models.ProviderElevenLabs, models.CapabilityVoiceover, func() services.ProviderClient {
			return services.NewVoiceProvider(models.ProviderElevenLabs, services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID))
		}},
		{models.ProviderCartesia, models.CapabilityVoiceover, func() services.ProviderClient {
			return services.NewVoiceProvider(models.ProviderCartesia, services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID))
		}},

		// Script writing and image analysis
		{models.ProviderOpenAI, models.CapabilityScript, func() services.ProviderClient { return services.NewScriptProvider(models.ProviderOpenAI, openaiSvc) }},
		{models.ProviderGemini, models.CapabilityScript, func() services.ProviderClient { return services.NewScriptProvider(models.ProviderGemini, geminiSvc) }},
		{models.ProviderOpenAI, models.CapabilityImageAnalysis, func() services.ProviderClient { return services.NewImageAnalysisProvider(models.ProviderOpenAI, openaiSvc) }},
		{models.ProviderGemini, models.CapabilityImageAnalysis, func() services.ProviderClient { return services.NewImageAnalysisProvider(models.ProviderGemini, geminiSvc) }},
	}

	for _, e := range entries {
		pc := pipeline.ProviderConfig{
			ID:             e.id,
			Capability:     e.capability,
			MaxDurationSec: maxDurations[e.id],
			Configured:     creds[e.id],
		}
		var client services.ProviderClient
		if pc.Configured {
			client = e.client()
		}
		if err := registry.Register(client, pc); err != nil {
			return fmt.Errorf("failed to register %s/%s: %w", e.capability, e.id, err)
		}
		if pc.Configured {
			log.Printf("Provider %s enabled for %s", e.id, e.capability)
		}
	}
	return nil
}

// RegisterHybrid registers the hybrid provider. Its budget covers several
// sequential segment calls.
func RegisterHybrid(registry *pipeline.Registry, cfg *config.Config, hybrid *pipeline.HybridProvider) error {
	pc := hybrid.Config()
	pc.Configured = cfg.ProviderCredentials()[models.ProviderHybrid]
	pc.Timeout = 3 * cfg.ProviderTimeout

	var client services.ProviderClient
	if pc.Configured {
		client = hybrid
	}
	return registry.Register(client, pc)
}
