package awstools

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"cloudpilot/internal/domain"
)

const notAvailable = "N/A"

type Instance struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	State     string `json:"state"`
	PublicIP  string `json:"public_ip"`
	PrivateIP string `json:"private_ip"`
}

// ListInstances returns every EC2 instance in the caller's region.
func (e *Executor) ListInstances(ctx context.Context, creds *domain.Credentials) domain.Result[[]Instance] {
	if !creds.Complete() {
		return domain.NeedsCredentials[[]Instance]("To list your EC2 instances, I'll need your AWS credentials. Please provide them securely.")
	}
	client := e.clients.EC2(e.Session(*creds))

	instances := make([]Instance, 0)
	p := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fail[[]Instance](domain.OpListInstances, err, failureText{
				action: "list EC2 instances",
				doing:  "listing EC2 instances",
			})
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				instances = append(instances, summarizeInstance(inst))
			}
		}
	}
	return domain.OK(instances, fmt.Sprintf("Successfully retrieved information for %d instance(s)", len(instances)))
}

func summarizeInstance(inst ec2types.Instance) Instance {
	state := ""
	if inst.State != nil {
		state = string(inst.State.Name)
	}
	return Instance{
		ID:        aws.ToString(inst.InstanceId),
		Type:      string(inst.InstanceType),
		State:     state,
		PublicIP:  valueOr(inst.PublicIpAddress, notAvailable),
		PrivateIP: valueOr(inst.PrivateIpAddress, notAvailable),
	}
}
