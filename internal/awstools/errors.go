package awstools

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"cloudpilot/internal/domain"
)

const (
	msgInvalidKeyID  = "The AWS Access Key ID you provided is invalid. Please check your credentials."
	msgInvalidSecret = "The AWS Secret Access Key you provided is invalid. Please check your credentials."
)

// failureText carries the operation-specific wording used when translating an
// SDK error into a result.
type failureText struct {
	// action completes "Your AWS credentials don't have permission to ...".
	action string
	// notFound is returned for missing-resource codes; empty means the code is
	// treated like any other provider error.
	notFound string
	// doing completes "Error ...: <err>" for failures that never reached AWS.
	doing string
}

// ErrorCode returns the provider error code carried by err, if any.
func ErrorCode(err error) (string, bool) {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	return apiErr.ErrorCode(), true
}

// IsCredentialError reports whether code means the keys are invalid or lack
// permission.
func IsCredentialError(code string) bool {
	switch code {
	case "InvalidAccessKeyId", "InvalidClientTokenId", "AuthFailure", "SignatureDoesNotMatch",
		"AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
		return true
	}
	return false
}

func translate[T any](err error, text failureText) domain.Result[T] {
	code, ok := ErrorCode(err)
	if !ok {
		return domain.Failed[T](fmt.Sprintf("Error %s: %v", text.doing, err))
	}
	switch code {
	case "InvalidAccessKeyId", "InvalidClientTokenId", "AuthFailure":
		return domain.NeedsCredentials[T](msgInvalidKeyID)
	case "SignatureDoesNotMatch":
		return domain.NeedsCredentials[T](msgInvalidSecret)
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
		return domain.NeedsCredentials[T](fmt.Sprintf(
			"Your AWS credentials don't have permission to %s. Please check your IAM permissions.", text.action))
	case "NoSuchBucket", "NoSuchEntity", "ResourceNotFoundException":
		if text.notFound != "" {
			return domain.Failed[T](text.notFound)
		}
	}
	return domain.Failed[T](fmt.Sprintf("AWS error: %v", err))
}
