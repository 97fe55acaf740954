/*

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package iam

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
)

const fullArnPrefix = "arn:"

// ARNRegexp is the regex to check that a role ARN is valid,
// see http://docs.aws.amazon.com/IAM/latest/UserGuide/reference_identifiers.html#identifiers-arns.
var ARNRegexp = regexp.MustCompile(`^arn:(\w|-)*:iam::\d+:role\/?(\w+|-|\/|\.|\+|=|,|@)*$`)

// IsValidARN validates a full role ARN.
func IsValidARN(roleARN string) bool {
	return ARNRegexp.MatchString(roleARN)
}

// IsFullARN reports whether role looks like an ARN rather than a role name.
func IsFullARN(role string) bool {
	return strings.HasPrefix(strings.ToLower(role), fullArnPrefix)
}

type ARNGetter interface {
	GetARN(ctx context.Context, role string) (string, error)
}

// Resolver turns role names into full ARNs using the account the
// controller runs in.
type Resolver struct {
	BaseARN func(ctx context.Context) (string, error)
}

// GetARN returns the full iam role ARN.
func (r *Resolver) GetARN(ctx context.Context, role string) (string, error) {
	if IsValidARN(role) {
		return role, nil
	}
	if IsFullARN(role) {
		return "", fmt.Errorf("%s is not a valid ARN", role)
	}

	baseArn, err := r.BaseARN(ctx)
	if err != nil {
		return "", err
	}

	full := fmt.Sprintf("%s%s", baseArn, strings.TrimPrefix(role, "/"))
	if !IsValidARN(full) {
		return "", fmt.Errorf("%s is not a valid ARN", full)
	}
	return full, nil
}

// STSBaseARN derives arn:{partition}:iam::{account}:role/ from the caller
// identity of the controller.
func STSBaseARN(client stsiface.STSAPI) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		out, err := client.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return "", fmt.Errorf("can't determine BaseARN: %w", err)
		}
		if out.Arn == nil {
			return "", fmt.Errorf("can't determine BaseARN: empty caller identity")
		}
		caller, err := arn.Parse(*out.Arn)
		if err != nil {
			return "", fmt.Errorf("can't determine BaseARN: %w", err)
		}
		return fmt.Sprintf("arn:%s:iam::%s:role/", caller.Partition, caller.AccountID), nil
	}
}
