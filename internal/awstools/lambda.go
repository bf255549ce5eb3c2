package awstools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"cloudpilot/internal/domain"
)

type CreateFunctionInput struct {
	FunctionName string `json:"name"`
	RoleARN      string `json:"role_arn"`
	Runtime      string `json:"runtime"`
	Handler      string `json:"handler"`
	ZipFilePath  string `json:"zip_file_path"`
}

type CreatedFunction struct {
	FunctionName string `json:"name"`
	FunctionArn  string `json:"function_arn"`
	Runtime      string `json:"runtime"`
	State        string `json:"state,omitempty"`
}

// CreateFunction creates a Lambda function from a deployment package stored
// under the configured function code directory.
func (e *Executor) CreateFunction(ctx context.Context, creds *domain.Credentials, in CreateFunctionInput) domain.Result[CreatedFunction] {
	name := strings.TrimSpace(in.FunctionName)
	if !creds.Complete() {
		return domain.NeedsCredentials[CreatedFunction](fmt.Sprintf("To create the Lambda function '%s', I'll need your AWS credentials. Please provide them securely.", name))
	}
	if name == "" || strings.TrimSpace(in.RoleARN) == "" || strings.TrimSpace(in.Runtime) == "" ||
		strings.TrimSpace(in.Handler) == "" || strings.TrimSpace(in.ZipFilePath) == "" {
		return domain.Failed[CreatedFunction]("Creating a Lambda function needs a function name, role ARN, runtime, handler and zip file path.")
	}

	path, err := e.resolveCodePath(in.ZipFilePath)
	if err != nil {
		return domain.Failed[CreatedFunction](fmt.Sprintf("Unable to use deployment package '%s': %v", in.ZipFilePath, err))
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return domain.Failed[CreatedFunction](fmt.Sprintf("Unable to read deployment package '%s': %v", in.ZipFilePath, err))
	}

	out, err := e.clients.Lambda(e.Session(*creds)).CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(name),
		Role:         aws.String(strings.TrimSpace(in.RoleARN)),
		Runtime:      lambdatypes.Runtime(strings.TrimSpace(in.Runtime)),
		Handler:      aws.String(strings.TrimSpace(in.Handler)),
		Code:         &lambdatypes.FunctionCode{ZipFile: code},
	})
	if err != nil {
		if errCode, _ := ErrorCode(err); errCode == "ResourceConflictException" {
			return domain.Failed[CreatedFunction](fmt.Sprintf("The Lambda function '%s' already exists", name))
		}
		return fail[CreatedFunction](domain.OpCreateFunction, err, failureText{
			action: "create Lambda functions",
			doing:  "creating Lambda function",
		})
	}
	created := CreatedFunction{FunctionName: name, Runtime: strings.TrimSpace(in.Runtime)}
	if out != nil {
		created.FunctionArn = aws.ToString(out.FunctionArn)
		if out.Runtime != "" {
			created.Runtime = string(out.Runtime)
		}
		created.State = string(out.State)
	}
	return domain.OK(created, fmt.Sprintf("Successfully created Lambda function '%s'", name))
}

// resolveCodePath maps a user supplied path onto the code directory. Absolute
// paths and paths climbing out of the directory are rejected.
func (e *Executor) resolveCodePath(p string) (string, error) {
	if e.codeDir == "" {
		return "", errors.New("no function code directory is configured")
	}
	p = strings.TrimSpace(p)
	if filepath.IsAbs(p) {
		return "", errors.New("path must be relative to the function code directory")
	}
	root, err := filepath.Abs(e.codeDir)
	if err != nil {
		return "", fmt.Errorf("resolve function code directory: %w", err)
	}
	full := filepath.Join(root, filepath.Clean(p))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path is outside the function code directory")
	}
	return full, nil
}
