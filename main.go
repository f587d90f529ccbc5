package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"clickguard/internal/aggregate"
	"clickguard/internal/bot"
	"clickguard/internal/config"
	"clickguard/internal/db"
	"clickguard/internal/fraud"
	"clickguard/internal/geo"
	"clickguard/internal/http/handlers"
	appmw "clickguard/internal/http/middleware"
	"clickguard/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapKey(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap API key: %v", err)
	}

	var geoCache geo.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		geoCache = geo.NewRedisCache(client)
		log.Printf("geo cache backed by redis at %s", cfg.RedisAddr)
	} else {
		geoCache = geo.NewDBCache(sqlDB)
	}
	resolver := geo.NewResolver(geoCache)

	limiter := ratelimit.NewLimiter(ratelimit.NewGormStore(sqlDB), cfg.RateLimits)
	history := fraud.NewGormHistory(sqlDB)
	scorer := fraud.NewScorer(fraud.DefaultConfig(), history)
	detector := bot.NewDetector(bot.DefaultSignatures())

	pipeline := aggregate.NewPipeline(aggregate.NewGormStore(sqlDB), cfg.AggregationFanout, cfg.RetentionDays)
	aggregate.StartWorker(pipeline)

	handlers.InitPrometheusMetrics()

	r := router.New()

	handler := handlers.RequestLogger(r.Handler)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metricsz", handlers.PrometheusHandler())

	auth := appmw.BearerAuth(sqlDB)
	r.POST("/v1/events", auth(handlers.IngestHandler(sqlDB, resolver, limiter, scorer, detector, history)))
	r.GET("/v1/buckets", auth(handlers.BucketsHandler(sqlDB)))
	r.POST("/v1/aggregate/trigger", auth(handlers.TriggerHandler(pipeline)))

	log.Printf("clickguard listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
