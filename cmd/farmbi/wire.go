package main

import (
	"fmt"
	"io"

	"github.com/OldStager01/farm-bi/api/handlers"
	"github.com/OldStager01/farm-bi/internal/alerts"
	"github.com/OldStager01/farm-bi/internal/anomaly"
	"github.com/OldStager01/farm-bi/internal/auth"
	"github.com/OldStager01/farm-bi/internal/backup"
	"github.com/OldStager01/farm-bi/internal/cache"
	"github.com/OldStager01/farm-bi/internal/closing"
	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/pattern"
	"github.com/OldStager01/farm-bi/internal/scheduler"
	"github.com/OldStager01/farm-bi/internal/snapshot"
	"github.com/OldStager01/farm-bi/pkg/config"
	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/database/queries"
)

// runtime is the fully wired component graph. Every command builds one and
// closes it on exit.
type runtime struct {
	cfg       *config.Config
	db        *database.DB
	bus       *events.EventBus
	publisher *events.Publisher
	cache     *cache.Cache
	snapshots *snapshot.Store
	anomalies *anomaly.Detector
	patterns  *pattern.Detector
	alerts    *alerts.Engine
	closer    *closing.Orchestrator
	auth      *auth.Service
	health    map[string]handlers.Pinger

	eventLogger *events.EventLogger
	closers     []io.Closer
}

func build(cfg *config.Config) (*runtime, error) {
	db, err := database.New(cfg.Database.ToDBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.WithField("driver", db.Driver()).Info("Database connection established")

	rt := &runtime{
		cfg:     cfg,
		db:      db,
		bus:     events.NewEventBus(cfg.Events.BufferSize),
		health:  map[string]handlers.Pinger{"database": db},
		closers: []io.Closer{db},
	}
	rt.publisher = events.NewPublisher(rt.bus)
	rt.eventLogger = events.NewEventLogger(rt.bus.SubscribeAll())
	rt.eventLogger.Start()

	store, err := rt.cacheStore()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.cache = cache.New(store,
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithKPITag(cfg.Cache.KPITag),
	)

	summaries := queries.NewSummaryRepository(db)
	alertRepo := queries.NewAlertRepository(db)
	operational := queries.NewOperationalRepository(db)

	rt.snapshots = snapshot.New(snapshot.Config{
		RetentionMonths: cfg.Snapshot.RetentionMonths,
		AlertLookback:   cfg.Snapshot.AlertLookback,
		AlertCap:        cfg.Snapshot.AlertCap,
	}, summaries, alertRepo, queries.NewSnapshotRepository(db))

	rt.anomalies = anomaly.New(anomaly.Config{
		Window:      cfg.Anomaly.Window,
		MinValues:   cfg.Anomaly.MinValues,
		Metrics:     cfg.Anomaly.Metrics,
		ZWeight:     cfg.Anomaly.ZWeight,
		PctWeight:   cfg.Anomaly.PctWeight,
		MediumScore: cfg.Anomaly.MediumScore,
		HighScore:   cfg.Anomaly.HighScore,
		CacheTTL:    cfg.Anomaly.CacheTTL,
	}, rt.snapshots, rt.cache)

	rt.patterns = pattern.New(pattern.Config{
		Window:         cfg.Pattern.Window,
		Metrics:        cfg.Pattern.Metrics,
		CostMetrics:    cfg.Pattern.CostMetrics,
		SeasonalMedium: cfg.Pattern.SeasonalMedium,
		SeasonalHigh:   cfg.Pattern.SeasonalHigh,
		RampValues:     cfg.Pattern.RampValues,
		RampMinValues:  cfg.Pattern.RampMinValues,
		RampLength:     cfg.Pattern.RampLength,
		CacheTTL:       cfg.Pattern.CacheTTL,
	}, rt.snapshots, rt.cache)

	a := cfg.Alerts
	rt.alerts = alerts.New(alerts.Config{
		DedupWindow:        a.DedupWindow,
		AverageMonths:      a.AverageMonths,
		SpendPct:           a.SpendPct,
		SpendHighPct:       a.SpendHighPct,
		OutputWindowDays:   a.OutputWindowDays,
		OutputBaseDays:     a.OutputBaseDays,
		OutputPct:          a.OutputPct,
		OutputHighPct:      a.OutputHighPct,
		LossPct:            a.LossPct,
		LossHighPct:        a.LossHighPct,
		SuccessWindowDays:  a.SuccessWindowDays,
		SuccessPct:         a.SuccessPct,
		SuccessHighPct:     a.SuccessHighPct,
		MinSample:          a.MinSample,
		ReviewDays:         a.ReviewDays,
		ReviewMinAnimals:   a.ReviewMinAnimals,
		PayrollDays:        a.PayrollDays,
		PayrollHighCount:   a.PayrollHighCount,
		QualityHigh:        a.QualityHigh,
		QualityMedium:      a.QualityMedium,
		QualityCoveragePct: a.QualityCoveragePct,
		QualityMinDays:     a.QualityMinDays,
	}, operational, alertRepo, rt.publisher)

	rt.closer = closing.New(closing.Config{
		MinYear:       cfg.Close.MinYear,
		LockDomains:   cfg.Close.LockDomains,
		ComparisonTTL: cfg.Cache.ComparisonTTL,
	}, closing.Deps{
		Source:    operational,
		Summaries: summaries,
		Locker:    queries.NewPeriodLockRepository(db),
		Snapshots: rt.snapshots,
		Cache:     rt.cache,
		Anomalies: rt.anomalies,
		Patterns:  rt.patterns,
		Alerts:    rt.alerts,
		Backup:    rt.backupRequester(),
		Publisher: rt.publisher,
	})

	rt.auth = auth.NewService(auth.Config{
		Secret:   cfg.API.JWTSecret,
		Duration: cfg.API.JWTDuration,
		Issuer:   cfg.API.JWTIssuer,
	})

	return rt, nil
}

func (rt *runtime) cacheStore() (cache.Store, error) {
	if rt.cfg.Cache.Backend != "redis" {
		return queries.NewCacheEntryRepository(rt.db), nil
	}

	r := rt.cfg.Cache.Redis
	store, err := cache.NewRedisStore(cache.RedisConfig{
		Addr:      r.Addr,
		Password:  r.Password,
		DB:        r.DB,
		PoolSize:  r.PoolSize,
		KeyPrefix: r.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	rt.health["redis"] = store
	rt.closers = append(rt.closers, store)
	logger.WithField("addr", r.Addr).Info("Using Redis cache backend")
	return store, nil
}

func (rt *runtime) backupRequester() backup.Requester {
	b := rt.cfg.Backup
	if !b.Enabled {
		return backup.NoopRequester{}
	}

	httpRequester := backup.NewHTTPRequester(backup.HTTPRequesterConfig{
		Endpoint: b.Endpoint,
		Timeout:  b.Timeout,
	})
	rt.closers = append(rt.closers, httpRequester)

	return backup.NewResilientRequester(backup.ResilientRequesterConfig{
		Requester:     httpRequester,
		MaxFailures:   b.CircuitBreaker.MaxFailures,
		Timeout:       b.CircuitBreaker.Timeout,
		RetryAttempts: b.RetryAttempts,
		RetryDelay:    b.RetryDelay,
	})
}

// jobs returns the periodic maintenance work run alongside the API.
func (rt *runtime) jobs() []scheduler.Job {
	s := rt.cfg.Scheduler
	return []scheduler.Job{
		scheduler.RulesJob(s.RulesInterval, rt.alerts, nil),
		scheduler.SweepJob(s.SweepInterval, rt.cache),
		scheduler.PruneJob(s.PruneInterval, rt.snapshots, rt.cfg.Snapshot.RetentionMonths),
	}
}

func (rt *runtime) Close() {
	rt.eventLogger.Stop()
	rt.bus.Close()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			logger.Warnf("Close failed: %v", err)
		}
	}
}
