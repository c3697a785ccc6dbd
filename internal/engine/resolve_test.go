package engine

import (
	"testing"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveValues(t *testing.T) {
	t.Setenv("LAMBDASYNC_TEST_REGION", "eu-west-1")

	upstream := &ir.PriorInstance{
		ResourceSpec: ir.ResourceSpec{
			Name:     "auth",
			Identity: &ir.IdentityReference{Name: "auth-execution-role", ARN: "arn:aws:iam::1:role/auth-execution-role"},
		},
		RemoteID: "arn:aws:lambda:us-east-1:1:function:auth",
		Version:  "7",
	}
	lookup := func(name string) *ir.PriorInstance {
		if name == "auth" {
			return upstream
		}
		return nil
	}

	spec := &ir.ResourceSpec{
		Name:        "api",
		Description: "api in ${env:LAMBDASYNC_TEST_REGION}",
		Environment: map[string]string{
			"AUTH_ARN":     "ptr://auth/remoteId",
			"AUTH_ALIAS":   "ptr://auth/arn",
			"AUTH_NAME":    "ptr://auth/name",
			"AUTH_VERSION": "ptr://auth/version",
			"AUTH_ROLE":    "ptr://auth/roleArn",
			"PLAIN":        "value",
		},
		Tags: map[string]string{"region": "${env:LAMBDASYNC_TEST_REGION}"},
	}

	got, err := ResolveValues(spec, lookup)
	require.NoError(t, err)

	assert.Equal(t, "api in eu-west-1", got.Description)
	assert.Equal(t, map[string]string{
		"AUTH_ARN":     upstream.RemoteID,
		"AUTH_ALIAS":   upstream.RemoteID,
		"AUTH_NAME":    "auth",
		"AUTH_VERSION": "7",
		"AUTH_ROLE":    upstream.Identity.ARN,
		"PLAIN":        "value",
	}, got.Environment)
	assert.Equal(t, "eu-west-1", got.Tags["region"])

	// The input is left untouched.
	assert.Equal(t, "ptr://auth/remoteId", spec.Environment["AUTH_ARN"])
}

func TestResolveValues_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value string
		msg   string
	}{
		{"unset env", "${env:LAMBDASYNC_TEST_DEFINITELY_UNSET}", "LAMBDASYNC_TEST_DEFINITELY_UNSET is not set"},
		{"malformed pointer", "ptr://auth", "malformed reference"},
		{"undeployed function", "ptr://missing/remoteId", "has not been deployed"},
		{"unknown attribute", "ptr://auth/memory", "unknown attribute"},
	}

	lookup := func(name string) *ir.PriorInstance {
		if name == "auth" {
			return &ir.PriorInstance{ResourceSpec: ir.ResourceSpec{Name: "auth"}}
		}
		return nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := &ir.ResourceSpec{Name: "api", Environment: map[string]string{"X": tt.value}}
			_, err := ResolveValues(spec, lookup)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, err.Error(), "environment X of api")
		})
	}
}

func TestResolveValues_NilLookup(t *testing.T) {
	spec := &ir.ResourceSpec{Name: "api", Environment: map[string]string{"X": "ptr://auth/name"}}
	_, err := ResolveValues(spec, nil)
	assert.ErrorContains(t, err, "has not been deployed")
}
