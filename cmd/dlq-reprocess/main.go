package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers          []string
	sourceTopic      string
	limit            int
	execute          bool
	includePermanent bool
	idleTimeout      time.Duration
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

// replayPublisher реализует *kafka.Producer.
type replayPublisher interface {
	PublishReplay(replay kafka.Replay, fromTopic string) error
}

type replayer struct {
	cfg       config
	client    offsetClient
	consumer  sarama.Consumer
	publisher replayPublisher
	logger    *log.Entry
	now       func() time.Time
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: MARKETPLACE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ records to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replays; default is dry-run")
	fs.BoolVar(&cfg.includePermanent, "include-permanent", false, "also replay commands rejected as permanent failures")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("MARKETPLACE_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or MARKETPLACE_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	brokers := make([]string, 0)
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-replay")

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	r := &replayer{cfg: cfg, client: client, consumer: consumer, logger: logger, now: time.Now}
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, logger.WithField("component", "kafka-producer"))
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		r.publisher = producer
	}

	stats, err := r.run(ctx)
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
	return err
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.cfg.execute && r.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.scanned >= r.cfg.limit {
			break
		}
		stats, err := r.replayPartition(ctx, partition, r.cfg.limit-total.scanned)
		total.scanned += stats.scanned
		total.replayed += stats.replayed
		total.skipped += stats.skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// replayPartition читает партицию от самого старого offset до high watermark на момент старта.
func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-pc.Errors():
			if ok && cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			if err := r.replayOne(msg); err != nil {
				if errors.Is(err, kafka.ErrSkipReplay) {
					stats.skipped++
					continue
				}
				return stats, err
			}
			stats.replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) replayOne(msg *sarama.ConsumerMessage) error {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	replay, err := kafka.DecodeDeadLetter(msg, r.cfg.includePermanent, r.now())
	if err != nil {
		if errors.Is(err, kafka.ErrSkipReplay) {
			r.logger.WithFields(fields).WithError(err).Info("skip dlq record")
			return err
		}
		r.logger.WithFields(fields).WithError(err).Warn("skip malformed dlq record")
		return fmt.Errorf("%w: %w", kafka.ErrSkipReplay, err)
	}

	fields["target_topic"] = replay.Topic
	fields["key"] = replay.Key
	fields["source"] = replay.Source
	if !r.cfg.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return nil
	}
	if err := r.publisher.PublishReplay(replay, r.cfg.sourceTopic); err != nil {
		return fmt.Errorf("publish replay: %w", err)
	}
	r.logger.WithFields(fields).Info("dlq record replayed")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
