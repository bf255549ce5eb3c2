package awstools

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"cloudpilot/internal/domain"
)

// CallerIdentity resolves the principal behind cfg's credentials.
func (e *Executor) CallerIdentity(ctx context.Context, cfg aws.Config) (domain.Identity, error) {
	out, err := e.clients.STS(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("awstools: get caller identity: %w", err)
	}
	return domain.Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}
