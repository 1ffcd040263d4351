package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/config"
	"github.com/example/blog-platform/internal/platform/db"
	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/internal/platform/logging"
	"github.com/example/blog-platform/internal/platform/natsconn"
	"github.com/example/blog-platform/internal/platform/run"
	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/comments"
	blogconfig "github.com/example/blog-platform/services/blog/internal/config"
	"github.com/example/blog-platform/services/blog/internal/handlers"
	"github.com/example/blog-platform/services/blog/internal/maintenance"
	"github.com/example/blog-platform/services/blog/internal/media"
	"github.com/example/blog-platform/services/blog/internal/notify"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/users"
)

type stores struct {
	comments      store.CommentStore
	posts         store.PostStore
	users         store.UserStore
	notifications store.NotificationStore
	pool          *pgxpool.Pool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	blogCfg, err := blogconfig.LoadBlog()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx := context.Background()
	st := initStores(ctx, cfg, blogCfg, log)

	pages, closeCache := initCache(cfg, blogCfg, log)

	var (
		publisher *events.Publisher
		notifier  notify.Notifier = notify.StoreNotifier{Notifications: st.notifications, Users: st.users}
		nc        *nats.Conn
		js        nats.JetStreamContext
	)
	nc, err = natsconn.Connect(natsconn.Options{URL: blogCfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Warn("nats unavailable, notifications are written inline and events are dropped", zap.Error(err))
	} else {
		js, err = nc.JetStream()
		if err == nil {
			err = natsconn.EnsureStream(js, events.Stream())
		}
		if err != nil {
			log.Warn("jetstream unavailable, notifications are written inline", zap.Error(err))
			js = nil
		} else {
			publisher = events.New(js, log)
			notifier = notify.Logged{Next: notify.JetStreamNotifier{JS: js}, Log: log}
		}
	}

	uploader := &media.Uploader{Config: blogCfg.S3, MaxBytes: blogCfg.MaxUploadBytes, Log: log}
	if blogCfg.S3.Enabled() {
		client, err := media.NewS3Client(ctx, blogCfg.S3)
		if err != nil {
			log.Error("s3 client", zap.Error(err))
			run.Exit(1)
		}
		uploader.Client = client
	} else {
		log.Warn("S3_BUCKET not set, image uploads are disabled")
	}

	var maint *maintenance.Maintainer
	if st.pool != nil {
		maint = &maintenance.Maintainer{DB: stdlib.OpenDBFromPool(st.pool), Log: log}
	}

	deps := handlers.Deps{
		Verifier: auth.JWTVerifier{Secret: blogCfg.JWTSecret},
		Comments: &comments.Service{
			Comments: st.comments, Posts: st.posts, Users: st.users,
			Notifier: notifier, Cache: pages, Events: publisher, Log: log,
		},
		Posts: &posts.Service{
			Posts: st.posts, Users: st.users, Comments: st.comments,
			Notifier: notifier, Cache: pages, Events: publisher, Log: log,
		},
		Users: &users.Service{
			Users:         st.users,
			Tokens:        auth.Issuer{Secret: blogCfg.JWTSecret, TTL: blogCfg.AccessTokenTTL},
			Events:        publisher,
			Log:           log,
			AdminUsername: blogCfg.BootstrapAdminUsername,
		},
		Inbox:       notify.Inbox{Notifications: st.notifications, Users: st.users},
		Media:       uploader,
		Maintenance: maint,
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger:      log,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		ReadyFunc: func() error {
			if st.pool == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return st.pool.Ping(ctx)
		},
	})
	handlers.Routes(r, deps)
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Router: r, ReadTimeout: cfg.HTTP.ReadTimeout})

	// gRPC: health and reflection for orchestration probes
	lis, err := net.Listen("tcp", blogCfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", blogCfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	// Hooks run in reverse: stop intake first, then drain background work.
	if st.pool != nil {
		runner.OnShutdown("postgres", func(context.Context) error {
			err := maint.DB.Close()
			st.pool.Close()
			return err
		})
	}
	if nc != nil {
		runner.OnShutdown("nats", func(context.Context) error { return nc.Drain() })
	}
	if closeCache != nil {
		runner.OnShutdown("cache", func(context.Context) error {
			closeCache()
			return nil
		})
	}
	runner.OnShutdown("events", func(ctx context.Context) error {
		deadline, _ := ctx.Deadline()
		if !publisher.Wait(time.Until(deadline)) {
			return errors.New("pending events not acknowledged")
		}
		return nil
	})
	if js != nil {
		sink := notify.StoreNotifier{Notifications: st.notifications, Users: st.users}
		consumer, err := notify.NewConsumer(js, sink, 0, 0, log)
		if err != nil {
			log.Error("notification consumer", zap.Error(err))
		} else {
			consumerCtx, stopConsumer := context.WithCancel(context.Background())
			go consumer.Run(consumerCtx)
			runner.OnShutdown("notification consumer", func(context.Context) error {
				stopConsumer()
				return consumer.Close()
			})
		}
	}
	if nc != nil {
		stop, err := cache.SubscribeInvalidation(nc, pages, log)
		if err != nil {
			log.Warn("comment cache invalidation subscription", zap.Error(err))
		} else {
			runner.OnShutdown("cache invalidation", func(context.Context) error { return stop() })
		}
	}
	runner.OnShutdown("grpc", func(ctx context.Context) error {
		healthSrv.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})
	runner.OnShutdown("http", srv.Shutdown)

	code := runner.WithSignals(func(ctx context.Context) error {
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStores selects the storage backend. In production (APP_ENV=production)
// it requires a migrated Postgres and terminates the process otherwise.
func initStores(ctx context.Context, cfg config.AppConfig, blogCfg blogconfig.BlogConfig, log *zap.Logger) stores {
	memory := func(reason string, err error) stores {
		if cfg.IsProduction() {
			log.Error("postgres is required in production", zap.String("reason", reason), zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("using in-memory stores (development only)", zap.String("reason", reason), zap.Error(err))
		return stores{
			comments:      store.NewInMemoryCommentStore(),
			posts:         store.NewInMemoryPostStore(),
			users:         store.NewInMemoryUserStore(),
			notifications: store.NewInMemoryNotificationStore(),
		}
	}

	if blogCfg.DatabaseURL == "" {
		return memory("DATABASE_URL not set", nil)
	}
	pool, err := db.Open(ctx, blogCfg.DatabaseURL)
	if err != nil {
		return memory("postgres unavailable", err)
	}
	if err := db.Migrate(pool, store.Migrations, "migrations"); err != nil {
		pool.Close()
		return memory("migrations failed", err)
	}

	log.Info("blog stores: postgres")
	return stores{
		comments:      store.NewPostgresCommentStore(pool),
		posts:         store.NewPostgresPostStore(pool),
		users:         store.NewPostgresUserStore(pool),
		notifications: store.NewPostgresNotificationStore(pool),
		pool:          pool,
	}
}

// initCache uses Redis when REDIS_URL is set so every instance shares one
// page cache, and a local TTL cache otherwise.
func initCache(cfg config.AppConfig, blogCfg blogconfig.BlogConfig, log *zap.Logger) (cache.Pages, func()) {
	if blogCfg.RedisURL == "" {
		return cache.NewTTLCache(blogCfg.CacheTTL), nil
	}
	rc, err := cache.NewRedisCache(blogCfg.RedisURL, blogCfg.CacheTTL, log)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("redis cache", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("redis unavailable, using in-process comment cache", zap.Error(err))
		return cache.NewTTLCache(blogCfg.CacheTTL), nil
	}
	return rc, func() { _ = rc.Close() }
}
