package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out   *ssm.GetParameterOutput
	err   error
	calls int
	last  *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.last = in
	return f.out, f.err
}

func TestGetParameter_DecryptsAndCaches(t *testing.T) {
	api := &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("/vantaloop/dsn"),
		Value: aws.String(" postgres://u:p@db/vantaloop \n"),
		Type:  types.ParameterTypeSecureString,
	}}}
	c, err := New(api)
	require.NoError(t, err)

	v, err := c.GetParameter(context.Background(), "/vantaloop/dsn")
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db/vantaloop", v)
	require.True(t, aws.ToBool(api.last.WithDecryption))

	_, err = c.GetParameter(context.Background(), " /vantaloop/dsn ")
	require.NoError(t, err)
	require.Equal(t, 1, api.calls)
}

func TestGetParameter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeSSM
		param   string
		wantErr string
	}{
		{"api error", &fakeSSM{err: errors.New("boom")}, "p", "boom"},
		{"missing value", &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}}, "p", "missing value"},
		{"nil output", &fakeSSM{}, "p", "missing value"},
		{"empty value", &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("  ")}}}, "p", "is empty"},
		{"blank name", &fakeSSM{}, "  ", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.api)
			require.NoError(t, err)
			_, err = c.GetParameter(context.Background(), tt.param)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetParameter_FailuresAreNotCached(t *testing.T) {
	api := &fakeSSM{err: errors.New("throttled")}
	c, err := New(api)
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "p")
	require.Error(t, err)

	api.err = nil
	api.out = &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("v")}}
	v, err := c.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.Equal(t, 2, api.calls)
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")

	_, err = (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}
