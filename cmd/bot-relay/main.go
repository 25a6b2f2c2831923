package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/sonyflake"
	"go.uber.org/zap"

	"github.com/lzyats/bot-relay/internal/auth"
	"github.com/lzyats/bot-relay/internal/breaker"
	"github.com/lzyats/bot-relay/internal/config"
	"github.com/lzyats/bot-relay/internal/conversations"
	"github.com/lzyats/bot-relay/internal/dedupe"
	"github.com/lzyats/bot-relay/internal/dispatch"
	"github.com/lzyats/bot-relay/internal/gate"
	"github.com/lzyats/bot-relay/internal/metrics"
	"github.com/lzyats/bot-relay/internal/publisher"
	"github.com/lzyats/bot-relay/internal/relay"
)

// Version is injected via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var cfgPaths string
	flag.StringVar(&cfgPaths, "c", "", "config file path (supports: a.yml,b.yml); empty reads the environment only")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPaths)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		// forward attempts fail until these are set
		log.Warn("incomplete configuration", zap.Strings("missing", missing))
	}
	log.Info("bot-relay starting", zap.String("version", Version), zap.String("addr", cfg.HTTP.Addr))

	metrics.Register()
	go serveMetrics(cfg.Metrics.Addr, log)

	convs := conversations.NewClient(conversations.Options{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		Region:     cfg.Twilio.Region,
		BaseURL:    cfg.Twilio.ConversationsURL,
		Timeout:    cfg.Timeout,
	})

	var brk *breaker.Breaker
	if cfg.Breaker.Enabled {
		brk = breaker.New(breaker.Options{
			Threshold: cfg.Breaker.Threshold,
			Window:    cfg.Breaker.Window,
			OpenFor:   cfg.Breaker.OpenFor,
		})
	}
	sender := dispatch.NewSender(dispatch.Options{
		AccountSID:  cfg.Twilio.AccountSID,
		AuthToken:   cfg.Twilio.AuthToken,
		URLTemplate: cfg.Bot.URL,
		Region:      cfg.Twilio.Region,
		Timeout:     cfg.Bot.Timeout,
		Breaker:     brk,
	})

	deps := relay.Deps{
		Gate: gate.New(convs, log, gate.Options{
			DefaultBotID:    cfg.Bot.ID,
			HandoffTarget:   cfg.Bot.HandoffTarget,
			MaxParticipants: cfg.Bot.MaxParticipants,
			OpTimeout:       cfg.Timeout,
		}),
		Codec:     auth.NewCodec(cfg.Twilio.AuthToken),
		Assembler: dispatch.Assembler{Domain: cfg.DomainName, CallbackPath: cfg.Routes.Callback},
		Sender:    sender,
		Log:       log,
	}

	if cfg.Dedupe.Enabled {
		rd, err := dedupe.NewRedis(dedupe.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
			TTL:      cfg.Dedupe.TTL,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			log.Fatal("redis init failed", zap.Error(err))
		}
		defer rd.Close()
		deps.Dedupe = rd
	}

	if cfg.RocketMQ.Enabled {
		prod, err := publisher.NewRocketMQ(publisher.Options{
			NameServer:    cfg.RocketMQ.NameServer,
			Topic:         cfg.RocketMQ.Topic,
			Tag:           cfg.RocketMQ.Tag,
			ProducerGroup: cfg.RocketMQ.ProducerGroup,
			AccessKey:     cfg.RocketMQ.AccessKey,
			SecretKey:     cfg.RocketMQ.SecretKey,
		})
		if err != nil {
			log.Fatal("rocketmq producer init failed", zap.Error(err))
		}
		defer prod.Close()
		deps.Publisher = prod
	}

	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		log.Fatal("sonyflake init failed")
	}
	deps.IDs = sf

	h := relay.New(deps)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mux.Handle(cfg.Routes.Incoming, incomingHandler(h, log))
	mux.Handle(cfg.Routes.Callback, auth.Guard(deps.Codec, log, callbackHandler(h)))

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 2 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("bot-relay stopped")
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server error", zap.Error(err))
	}
}
