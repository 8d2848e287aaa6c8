package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"odin/api/grpcserver"
	"odin/api/ws"
	"odin/config"
	"odin/domain/book"
	"odin/domain/tick"
	"odin/infra/kafka"
	"odin/infra/sequence"
	entrywal "odin/infra/wal/entry"
	exitwal "odin/infra/wal/exit"
	"odin/jobs/broadcaster"
	"odin/service"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ladder, err := newLadder(cfg.Instrument)
	if err != nil {
		log.Fatal("build tick ladder", zap.Error(err))
	}

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:         cfg.WAL.EntryDir,
		SegmentSize: cfg.WAL.SegmentSize,
	})
	if err != nil {
		log.Fatal("open entry journal", zap.Error(err))
	}
	defer entryWAL.Close()

	exitWAL, err := exitwal.Open(cfg.WAL.ExitDir)
	if err != nil {
		log.Fatal("open exit journal", zap.Error(err))
	}
	defer exitWAL.Close()

	hub := ws.NewHub(log)
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	svc, err := service.NewOrderService(
		book.New(ladder),
		sequence.New(0),
		entryWAL,
		exitWAL,
		log,
		producer,
		hub,
	)
	if err != nil {
		log.Fatal("build order service", zap.Error(err))
	}

	if err := svc.Replay(cfg.WAL.EntryDir); err != nil {
		log.Fatal("replay entry journal", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bc, err := broadcaster.New(exitWAL, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BroadcastInterval, log)
	if err != nil {
		log.Fatal("build broadcaster", zap.Error(err))
	}
	defer bc.Close()
	go bc.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	httpSrv := &http.Server{Addr: cfg.HTTPListen, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server exited", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCListen)
	if err != nil {
		log.Fatal("listen", zap.String("addr", cfg.GRPCListen), zap.Error(err))
	}

	grpcSrv := grpc.NewServer()
	grpcserver.NewServer(svc).Register(grpcSrv)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		grpcSrv.GracefulStop()
		_ = httpSrv.Shutdown(context.Background())
	}()

	log.Info("engine running",
		zap.String("grpc", cfg.GRPCListen),
		zap.String("http", cfg.HTTPListen),
		zap.String("tick", cfg.Instrument.TickSize))

	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatal("grpc server exited", zap.Error(err))
	}
}

func newLadder(in config.Instrument) (tick.Ladder, error) {
	size, err := decimal.NewFromString(in.TickSize)
	if err != nil {
		return tick.Ladder{}, err
	}
	min, err := decimal.NewFromString(in.MinPrice)
	if err != nil {
		return tick.Ladder{}, err
	}
	max, err := decimal.NewFromString(in.MaxPrice)
	if err != nil {
		return tick.Ladder{}, err
	}
	return tick.New(size, min, max)
}
