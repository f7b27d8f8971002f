// Package archive implements the optional secondary StorageSink described
// in SPEC_FULL.md §4.10: after local persistence succeeds, a bounded
// worker pool best-effort mirrors completed event directories to an
// S3-compatible bucket. Upload failures are logged and the artifact is not
// uploaded again; they never block or fail local persistence.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
)

// Job is one queued upload: the local artifact bytes plus its destination
// key suffix.
type Job struct {
	Dir  string
	Name string
	Data []byte
}

// Sink uploads artifacts to S3 in the background. It is not itself a
// recorder.StorageSink — it is wired in addition to FileSink, mirroring
// what was already durably written locally.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string

	queue chan Job
	wg    sync.WaitGroup
}

// New resolves AWS credentials and starts workers background upload
// goroutines. When accessKey/secretKey are both non-empty they are used
// directly as a static credentials provider; otherwise the default chain
// (environment, shared config, IMDS) resolves them.
func New(ctx context.Context, bucket, prefix, region, accessKey, secretKey string, workers int) (*Sink, error) {
	if workers < 1 {
		workers = 2
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	s := &Sink{client: client, bucket: bucket, prefix: prefix, queue: make(chan Job, 256)}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

// Enqueue schedules dir/name for upload. Never blocks the caller for long:
// if the queue is saturated the job is dropped and logged, and is not
// queued again later.
func (s *Sink) Enqueue(dir, name string, data []byte) {
	select {
	case s.queue <- Job{Dir: dir, Name: name, Data: data}:
	default:
		log.Printf("[archive] queue full, dropping upload %s/%s", dir, name)
	}
}

// Close stops accepting new jobs and waits for in-flight uploads to drain.
func (s *Sink) Close() {
	close(s.queue)
	s.wg.Wait()
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		s.upload(job)
	}
}

// upload gzips the artifact before sending it off-site: BMP/cube frame
// payloads are uncompressed raster data, and egress bandwidth is the
// actual cost of a mirror nobody reads most of, unlike the local copy.
func (s *Sink) upload(job Job) {
	key := path.Join(s.prefix, job.Dir, job.Name) + ".gz"

	var buf bytes.Buffer
	gw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if _, err := gw.Write(job.Data); err != nil {
		log.Printf("[archive] compress %s failed: %v", key, err)
		return
	}
	if err := gw.Close(); err != nil {
		log.Printf("[archive] compress %s failed: %v", key, err)
		return
	}

	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		log.Printf("[archive] upload %s failed: %v", key, err)
		return
	}
	log.Printf("[archive] uploaded %s (%d bytes, %d before compression)", key, buf.Len(), len(job.Data))
}
