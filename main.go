package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// 配置信息
	mongoURI        = flag.String("mongo_uri", "", "mongo db uri (default: $MONGO_URI)")
	configPath      = flag.String("config", "config.yaml", "model config yaml path")
	scenarioPathStr = flag.String("scenario", "", "scenario file or database and collection prefix [format: {fspath} or {db}.{col}]")
	logLevel        = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "", "pprof listening address")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}

	log = logrus.WithField("module", "main")
)

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	flag.Parse()
	if level, ok := LOG_LEVELS[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}
	// .env不存在时忽略
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env")
	}
	if *mongoURI == "" {
		*mongoURI = os.Getenv("MONGO_URI")
	}

	if *pprofAddr != "" {
		// 启动pprof
		startHTTPDebugger(*pprofAddr)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("invalid config %s: %v", *configPath, err)
	}

	// 优雅退出
	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	//监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping...")
		cancel()
		<-signalCh
		os.Exit(1) // 强制结束
	}()

	if *benchmark {
		// 性能测试
		runBenchmark(ctx, cfg)
		return
	}

	scenarioPath, err := NewPath(*scenarioPathStr)
	if err != nil {
		log.Fatalf("invalid scenario path: %s", err)
	}
	if scenarioPath == nil {
		log.Fatal("scenario path is required")
	}
	res, err := run(ctx, cfg, *mongoURI, scenarioPath)
	if errors.Is(err, algo.ErrNonConvergence) {
		logSummary(res)
		log.Fatalf("run finished without convergence: %v", err)
	}
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	logSummary(res)
	log.Info("tripchain closes")
}
