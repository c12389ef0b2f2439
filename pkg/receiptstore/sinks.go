package receiptstore

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathwell/agentcore/pkg/receipt"
)

// Sink fans a freshly written receipt out to a durable side channel.
// Sinks are best-effort: a Sink failure is logged, never surfaced to
// the gateway's fire-and-forget write path.
type Sink interface {
	Publish(ctx context.Context, r receipt.Receipt) error
}

// KafkaSink publishes each receipt as a JSON message keyed by trace_id
// so a single trace's receipts land on the same partition in order.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaSink builds a sink that writes to topic across brokers.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		logger: logger,
	}
}

func (k *KafkaSink) Publish(ctx context.Context, r receipt.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.TraceID),
		Value: body,
		Time:  r.Timestamp,
	})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// S3Sink archives each receipt as an individual object keyed by UTC
// date and hour plus the receipt's unix timestamp
// (receipts/YYYY/MM/DD/HH/receipt_<unix_ts>.json), for long-term
// retention outside the primary store.
type S3Sink struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// NewS3Sink builds a sink that archives objects into bucket.
func NewS3Sink(client *s3.Client, bucket string, logger *zap.Logger) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, logger: logger}
}

func (a *S3Sink) Publish(ctx context.Context, r receipt.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ts := r.Timestamp.UTC()
	key := "receipts/" + ts.Format("2006/01/02/15") + "/receipt_" + strconv.FormatInt(ts.Unix(), 10) + ".json"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

// fanOut publishes r to every sink concurrently, each in its own
// goroutine under a shared 5s deadline, and waits for all of them.
// Sinks are best-effort: failures are logged, not retried or propagated.
func fanOut(ctx context.Context, sinks []Sink, r receipt.Receipt, logger *zap.Logger) {
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for _, sink := range sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Publish(deadline, r); err != nil {
				logger.Warn("receipt sink publish failed", zap.String("receipt_id", r.ReceiptID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
