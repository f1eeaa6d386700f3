// README: Entry point; loads config, wires stores and services, starts HTTP server, watchers and background tickers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cabdispatch/internal/config"
	"cabdispatch/internal/events"
	"cabdispatch/internal/events/watch"
	httptransport "cabdispatch/internal/http"
	"cabdispatch/internal/infra"
	"cabdispatch/internal/logging"
	"cabdispatch/internal/maps"
	"cabdispatch/internal/modules/assignment"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/counter"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/location"
	"cabdispatch/internal/modules/notification"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/modules/sweeper"
	"cabdispatch/internal/store/memory"
)

const positionTTL = 2 * time.Hour

// dispatchBookings is everything the background components need from the booking store.
type dispatchBookings interface {
	booking.Store
	sweeper.Store
	location.BookingPositions
	operator.PendingQuery
}

type stores struct {
	bookings  dispatchBookings
	drivers   driver.Store
	offers    offer.Store
	operators operator.Store
	counters  counter.Store
	sink      notification.Sink
	verifier  infra.TokenVerifier
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(logger)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	var positions location.PositionCache = location.NewMemoryPositionCache()
	var locker sweeper.Locker
	if cfg.Redis.Addr != "" {
		rdb := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
		defer func() { _ = rdb.Close() }()
		positions = location.NewRedisPositionCache(rdb, positionTTL)
		locker = sweeper.NewRedisLocker(rdb)
	}

	var audit booking.EventLog
	var pgCounters counter.Store
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pool.Close()
		audit = booking.NewPGEventLog(pool)
		pgCounters = counter.NewPGStore(pool)
	}

	var st stores
	if cfg.Firebase.ProjectID != "" {
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("firebase init failed", zap.Error(err))
		}
		defer func() { _ = fb.Close() }()
		st = stores{
			bookings:  booking.NewFirestoreStore(fb.Firestore),
			drivers:   driver.NewFirestoreStore(fb.Firestore),
			offers:    offer.NewFirestoreStore(fb.Firestore),
			operators: operator.NewFirestoreStore(fb.Firestore),
			sink:      notification.NewFCMSink(fb.Firestore, fb.Messaging),
			verifier:  fb.Verifier,
		}
		w := watch.New(fb.Firestore, positions, bus, logger)
		go w.RunPendingBookings(ctx)
		go w.RunOnlineDrivers(ctx)
	} else {
		logger.Warn("no firebase project configured; using in-memory stores and local tokens")
		db := memory.New()
		db.OnChange(func(e events.Event) { bus.Publish(ctx, e) })
		st = stores{
			bookings:  db.Bookings(),
			drivers:   db.Drivers(),
			offers:    db.Offers(),
			operators: db.Operators(),
			counters:  db.Counters(),
			sink:      notification.NewLogSink(logger),
			verifier:  infra.LocalVerifier{},
		}
	}
	if pgCounters != nil {
		st.counters = pgCounters
	}
	if st.counters == nil {
		logger.Fatal("sequential counters need a postgres DSN")
	}

	counters := counter.NewService(st.counters)
	bookingSvc := booking.NewService(st.bookings, audit, counters, cfg.Dispatch.BookingTimeout, logger).WithPublisher(publisher)
	offerMgr := offer.NewManager(st.offers, st.bookings, bookingSvc, publisher, cfg.Dispatch.ExpiryTick, logger)

	deps := assignment.Deps{
		Bookings:  st.bookings,
		Policy:    operator.NewPolicy(st.operators, operator.NewPendingWaitEstimator(st.bookings)),
		Drivers:   st.drivers,
		Assigner:  st.offers,
		Audit:     bookingSvc,
		Publisher: publisher,
	}
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps init failed", zap.Error(err))
		}
		deps.Routes = routes
	}
	assignSvc := assignment.NewService(deps, cfg.Dispatch, logger)
	propagator := location.NewPropagator(st.bookings, cfg.Dispatch, logger)
	sweep := sweeper.New(st.bookings, st.sink, publisher, bookingSvc, locker, cfg.Dispatch, logger)

	bus.Subscribe(events.TopicBookingPending, "assignment", assignSvc.HandleEvent)
	bus.Subscribe(events.TopicDriverUpdated, "location", propagator.HandleEvent)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Bookings:  bookingSvc,
		Offers:    offerMgr,
		Drivers:   driver.NewService(st.drivers),
		Operators: operator.NewService(st.operators, counters),
		Sweeper:   sweep,
		Verifier:  st.verifier,
		Log:       logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes(), ReadHeaderTimeout: 10 * time.Second}

	go offerMgr.RunExpiryTicker(ctx)
	go sweep.RunScheduler(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("dispatch api listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
	bus.Wait()
}
