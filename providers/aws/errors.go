package aws

import (
	"errors"
	"fmt"

	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

var notFoundCodes = map[string]bool{
	"ResourceNotFoundException": true,
	"NoSuchEntity":              true,
}

// isNotFound reports whether err is an AWS "does not exist" error.
func isNotFound(err error) bool {
	var rnf *lambdatypes.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	var nse *iamtypes.NoSuchEntityException
	if errors.As(err, &nse) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return notFoundCodes[ae.ErrorCode()]
	}
	return false
}

func isAlreadyExists(err error) bool {
	var eae *iamtypes.EntityAlreadyExistsException
	if errors.As(err, &eae) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "EntityAlreadyExists"
}

// translate maps AWS not-found errors onto funcapi.ErrNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %w", funcapi.ErrNotFound, err)
	}
	return err
}
