package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/picklr-io/lambdasync/pkg/funcapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConstructor struct {
	inputs []*funcapi.RoleInput
	err    error
}

func (c *recordingConstructor) ConstructRole(_ context.Context, in *funcapi.RoleInput) (*funcapi.Role, error) {
	c.inputs = append(c.inputs, in)
	if c.err != nil {
		return nil, c.err
	}
	return &funcapi.Role{Name: in.Name, ARN: "arn:aws:iam::123456789012:role/" + in.Name}, nil
}

func TestRoleName(t *testing.T) {
	assert.Equal(t, "fn-a-execution-role", RoleName("fn-a"))
}

func TestTrustPolicy(t *testing.T) {
	raw, err := TrustPolicy("lambda.amazonaws.com")
	require.NoError(t, err)

	var doc policyDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "sts:AssumeRole", doc.Statement[0].Action)
	assert.Equal(t, "lambda.amazonaws.com", doc.Statement[0].Principal["Service"])
}

func TestResolveIdentity(t *testing.T) {
	c := &recordingConstructor{}
	r := NewResolver(c)

	ref, err := r.ResolveIdentity(context.Background(), "fn-a", "")
	require.NoError(t, err)
	assert.Equal(t, "fn-a-execution-role", ref.Name)
	assert.Equal(t, "arn:aws:iam::123456789012:role/fn-a-execution-role", ref.ARN)

	require.Len(t, c.inputs, 1)
	assert.Contains(t, c.inputs[0].TrustPolicy, DefaultServiceToken)
	assert.Equal(t, []string{BasicExecutionPolicyARN}, c.inputs[0].ManagedPolicies)
}

func TestResolveIdentity_CustomServiceToken(t *testing.T) {
	c := &recordingConstructor{}
	_, err := NewResolver(c).ResolveIdentity(context.Background(), "fn-a", "edgelambda.amazonaws.com")
	require.NoError(t, err)
	assert.Contains(t, c.inputs[0].TrustPolicy, "edgelambda.amazonaws.com")
}

func TestResolveIdentity_PropagatesError(t *testing.T) {
	boom := errors.New("access denied")
	_, err := NewResolver(&recordingConstructor{err: boom}).ResolveIdentity(context.Background(), "fn-a", "")
	assert.Same(t, boom, err)
}
