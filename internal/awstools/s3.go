package awstools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"cloudpilot/internal/domain"
)

type BucketSize struct {
	Name      string  `json:"name"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
}

type BucketStats struct {
	BucketName     string  `json:"bucket_name"`
	FileCount      int     `json:"file_count"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
}

type CreatedBucket struct {
	BucketName string `json:"bucket_name"`
	Region     string `json:"region"`
	Location   string `json:"location,omitempty"`
}

// BucketSizes returns every bucket visible to the caller with its total size.
func (e *Executor) BucketSizes(ctx context.Context, creds *domain.Credentials) domain.Result[[]BucketSize] {
	if !creds.Complete() {
		return domain.NeedsCredentials[[]BucketSize]("To list your S3 buckets and their sizes, I'll need your AWS credentials. Please provide them securely.")
	}
	text := failureText{action: "list S3 buckets", doing: "getting S3 bucket sizes"}
	client := e.clients.S3(e.Session(*creds))

	refs, err := listBuckets(ctx, client)
	if err != nil {
		return fail[[]BucketSize](domain.OpBucketSizes, err, text)
	}
	buckets := make([]BucketSize, 0, len(refs))
	for _, b := range refs {
		_, size, err := sumObjects(ctx, client, b)
		if err != nil {
			return fail[[]BucketSize](domain.OpBucketSizes, err, text)
		}
		buckets = append(buckets, BucketSize{Name: b.name, SizeBytes: size, SizeMB: toMB(size)})
	}
	return domain.OK(buckets, fmt.Sprintf("Successfully retrieved information for %d bucket(s)", len(buckets)))
}

// BucketFileCount counts objects in bucketName, or in every bucket when
// bucketName is empty.
func (e *Executor) BucketFileCount(ctx context.Context, creds *domain.Credentials, bucketName string) domain.Result[[]BucketStats] {
	if !creds.Complete() {
		return domain.NeedsCredentials[[]BucketStats]("To count files in your S3 buckets, I'll need your AWS credentials. Please provide them securely.")
	}
	bucketName = strings.TrimSpace(bucketName)
	client := e.clients.S3(e.Session(*creds))

	var buckets []bucketRef
	if bucketName == "" {
		refs, err := listBuckets(ctx, client)
		if err != nil {
			return fail[[]BucketStats](domain.OpBucketFileCount, err, failureText{
				action: "list S3 buckets",
				doing:  "counting S3 files",
			})
		}
		buckets = refs
	} else {
		buckets = []bucketRef{{name: bucketName, region: bucketRegion(ctx, client, bucketName)}}
	}

	stats := make([]BucketStats, 0, len(buckets))
	for _, bucket := range buckets {
		count, size, err := sumObjects(ctx, client, bucket)
		if err != nil {
			return fail[[]BucketStats](domain.OpBucketFileCount, err, failureText{
				action:   "list objects in S3 buckets",
				notFound: fmt.Sprintf("The specified bucket '%s' does not exist", bucket.name),
				doing:    "counting S3 files",
			})
		}
		stats = append(stats, BucketStats{
			BucketName:     bucket.name,
			FileCount:      count,
			TotalSizeBytes: size,
			TotalSizeMB:    toMB(size),
		})
	}
	return domain.OK(stats, fileCountSummary(stats))
}

func fileCountSummary(stats []BucketStats) string {
	if len(stats) == 1 {
		b := stats[0]
		return fmt.Sprintf("Bucket '%s' contains %d files (%.2f MB)", b.BucketName, b.FileCount, b.TotalSizeMB)
	}
	var files int
	var mb float64
	for _, b := range stats {
		files += b.FileCount
		mb += b.TotalSizeMB
	}
	return fmt.Sprintf("Found %d files across %d buckets (Total size: %.2f MB)", files, len(stats), mb)
}

// CreateBucket creates bucketName in the caller's region.
func (e *Executor) CreateBucket(ctx context.Context, creds *domain.Credentials, bucketName string) domain.Result[CreatedBucket] {
	bucketName = strings.TrimSpace(bucketName)
	if !creds.Complete() {
		return domain.NeedsCredentials[CreatedBucket](fmt.Sprintf("To create the S3 bucket '%s', I'll need your AWS credentials. Please provide them securely.", bucketName))
	}
	if bucketName == "" {
		return domain.Failed[CreatedBucket]("A bucket name is required to create an S3 bucket.")
	}
	cfg := e.Session(*creds)
	in := &s3.CreateBucketInput{Bucket: aws.String(bucketName)}
	// us-east-1 rejects an explicit location constraint.
	if cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(cfg.Region),
		}
	}

	out, err := e.clients.S3(cfg).CreateBucket(ctx, in)
	if err != nil {
		if code, _ := ErrorCode(err); code == "BucketAlreadyExists" || code == "BucketAlreadyOwnedByYou" {
			return domain.Failed[CreatedBucket](fmt.Sprintf("The bucket name '%s' is already in use", bucketName))
		}
		return fail[CreatedBucket](domain.OpCreateBucket, err, failureText{action: "create S3 buckets", doing: "creating S3 bucket"})
	}
	created := CreatedBucket{BucketName: bucketName, Region: cfg.Region}
	if out != nil {
		created.Location = aws.ToString(out.Location)
	}
	return domain.OK(created, fmt.Sprintf("Successfully created S3 bucket '%s' in %s", bucketName, cfg.Region))
}

// bucketRef names a bucket and the region it lives in. An empty region means
// the session's own.
type bucketRef struct {
	name   string
	region string
}

func listBuckets(ctx context.Context, client S3API) ([]bucketRef, error) {
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	refs := make([]bucketRef, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		refs = append(refs, bucketRef{name: aws.ToString(b.Name), region: aws.ToString(b.BucketRegion)})
	}
	return refs, nil
}

// bucketRegion looks up where bucket lives. A bucket in another region
// answers HeadBucket with a redirect that still carries the region header.
// Any other failure yields "" so the listing reports the real error.
func bucketRegion(ctx context.Context, client S3API, bucket string) string {
	out, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		if out == nil {
			return ""
		}
		return aws.ToString(out.BucketRegion)
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) && re.Response != nil && re.Response.Response != nil {
		return re.Response.Header.Get("X-Amz-Bucket-Region")
	}
	return ""
}

func sumObjects(ctx context.Context, client S3API, bucket bucketRef) (int, int64, error) {
	var optFns []func(*s3.Options)
	if bucket.region != "" {
		optFns = append(optFns, func(o *s3.Options) { o.Region = bucket.region })
	}
	var count int
	var size int64
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket.name)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx, optFns...)
		if err != nil {
			return 0, 0, err
		}
		count += len(page.Contents)
		for _, obj := range page.Contents {
			size += aws.ToInt64(obj.Size)
		}
	}
	return count, size, nil
}
