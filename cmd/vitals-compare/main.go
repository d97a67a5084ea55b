package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vitals-compare/common/database"
	logpkg "vitals-compare/common/logger"
	mqttcommon "vitals-compare/common/mqtt"
	rediscommon "vitals-compare/common/redis"
	"vitals-compare/internal/config"
	"vitals-compare/internal/loader"
	"vitals-compare/internal/models"
	"vitals-compare/internal/publisher"
	"vitals-compare/internal/repository"
	"vitals-compare/internal/service"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const serviceName = "vitals-compare"

// inputList 可重复的 -input 参数
type inputList []string

func (l *inputList) String() string {
	return strings.Join(*l, ",")
}

func (l *inputList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		inputs     inputList
		telemetry  = fs.String("telemetry", "", "Telemetry export (path or URL)")
		dozee      = fs.String("dozee", "", "Dozee export (path or URL)")
		earlySense = fs.String("es", "", "EarlySense export (path or URL)")
		outDir     = fs.String("out", "", "artifact directory (overrides COMPARE_OUTPUT_DIR)")
		session    = fs.String("session", "", "session name (overrides COMPARE_SESSION)")
		workbook   = fs.String("workbook", "", "comparison workbook path (overrides COMPARE_WORKBOOK)")
		jobFile    = fs.String("config", "", "YAML job file")
		verify     = fs.Bool("verify", false, "read back every written output after the run and fail on mismatch")
	)
	fs.Var(&inputs, "input", "input as kind=location or a location whose name contains TELEMETRY/DOZEE/ES (repeatable)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *jobFile != "" {
		if err := cfg.ApplyJobFile(*jobFile); err != nil {
			fmt.Fprintf(stderr, "Failed to load job file: %v\n", err)
			return 1
		}
	}
	if *session != "" {
		cfg.Compare.Session = *session
	}
	if *outDir != "" {
		cfg.Compare.OutputDir = *outDir
	}
	if *workbook != "" {
		cfg.Compare.Workbook = *workbook
	}

	for _, named := range []struct {
		kind     models.SourceKind
		location string
	}{
		{models.SourceTelemetry, *telemetry},
		{models.SourceEarlySense, *earlySense},
		{models.SourceDozee, *dozee},
	} {
		if named.location != "" {
			cfg.Compare.Inputs = append(cfg.Compare.Inputs, config.InputSpec{Kind: named.kind.String(), Location: named.location})
		}
	}
	for _, arg := range inputs {
		in, err := config.ParseInputArg(arg)
		if err != nil {
			fmt.Fprintf(stderr, "Invalid -input: %v\n", err)
			return 1
		}
		cfg.Compare.Inputs = append(cfg.Compare.Inputs, in)
	}

	if len(cfg.Compare.Inputs) == 0 {
		fs.Usage()
		return 0
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	sources, err := service.ResolveSources(cfg.Compare.Inputs)
	if err != nil {
		log.Error("Failed to resolve inputs", zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var (
		bucketStore  service.BucketStore
		bucketReader service.BucketReader
	)
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			log.Error("Failed to connect to database", zap.Error(err))
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer database.Close(db)

		repo := repository.NewMinuteBucketRepository(db, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Error("Failed to ensure schema", zap.Error(err))
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		bucketStore = repo
		bucketReader = repo
	}

	sinks := buildSinks(ctx, cfg, log)
	defer sinks.close()

	svc := service.NewComparisonService(
		cfg.Compare.Session,
		cfg.Compare.Workbook,
		loader.NewLoader(cfg.Compare.HTTPTimeout, log),
		repository.NewCSVStore(cfg.Compare.OutputDir, log),
		bucketStore,
		sinks.dispatcher,
		log,
	)

	summary, err := svc.Run(ctx, sources)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *verify {
		if err := sinks.verifier(bucketReader, log).Verify(ctx, summary); err != nil {
			log.Error("Readback verification failed", zap.Error(err))
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	printSummary(stdout, summary)
	return 0
}

// sinks 本次运行的发布端
type sinks struct {
	dispatcher *publisher.Dispatcher
	stream     *publisher.StreamNotifier // Redis 不可用时为 nil
	cache      *publisher.CoverageCache  // 同上
	closers    []func()
}

func (s *sinks) close() {
	for _, c := range s.closers {
		c()
	}
}

// verifier 只回读实际启用的输出端
func (s *sinks) verifier(buckets service.BucketReader, log *zap.Logger) *service.Verifier {
	var (
		cache  service.CoverageReader
		stream service.SummaryReader
	)
	if s.cache != nil {
		cache = s.cache
	}
	if s.stream != nil {
		stream = s.stream
	}
	return service.NewVerifier(buckets, cache, stream, log)
}

// buildSinks 按配置连接 Redis / MQTT，连接失败时跳过对应的发布端
func buildSinks(ctx context.Context, cfg *config.Config, log *zap.Logger) *sinks {
	var (
		out       sinks
		notifiers []publisher.Notifier
	)

	if cfg.Redis.Enabled {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, client); err != nil {
			log.Warn("Redis unavailable, skipping stream and coverage cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			rediscommon.Close(client)
		} else {
			out.stream = publisher.NewStreamNotifier(client, cfg.Compare.StreamOutput)
			out.cache = publisher.NewCoverageCache(publisher.NewRedisKVStore(client), cfg.Compare.CoverageCacheTTL)
			notifiers = append(notifiers, out.stream, out.cache)
			out.closers = append(out.closers, func() { rediscommon.Close(client) })
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, skipping summary publish", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			notifiers = append(notifiers, publisher.NewMQTTNotifier(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
			out.closers = append(out.closers, client.Disconnect)
		}
	}

	out.dispatcher = publisher.NewDispatcher(log, notifiers...)
	return &out
}

func printSummary(w io.Writer, summary *models.RunSummary) {
	fmt.Fprintf(w, "run %s (session %s)\n", summary.RunID, summary.Session)
	for _, src := range summary.Sources {
		fmt.Fprintf(w, "  %-10s %s minutes, %s evaluable (%.1f%%)\n",
			src.Kind.DisplayName(),
			humanize.Comma(int64(src.Coverage.TotalMinutes)),
			humanize.Comma(int64(src.Coverage.EvaluableMinutes)),
			src.CoverageRatio*100,
		)
		fmt.Fprintf(w, "             %s\n             %s\n", src.ReducedPath, src.MinutesPath)
	}
	if summary.WorkbookPath != "" {
		fmt.Fprintf(w, "  workbook   %s\n", summary.WorkbookPath)
	}
}
