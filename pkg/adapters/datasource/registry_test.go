package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
)

type stubExecutor struct {
	cfg Config
}

func (s *stubExecutor) TestConnection(ctx context.Context) error { return nil }
func (s *stubExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}
func (s *stubExecutor) Close() error { return nil }

func TestRegistry(t *testing.T) {
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: "zz-stub", DisplayName: "Stub"},
		Factory: func(ctx context.Context, cfg Config) (QueryExecutor, error) {
			return &stubExecutor{cfg: cfg}, nil
		},
	})
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: "aa-stub", DisplayName: "Stub"},
		Factory: func(ctx context.Context, cfg Config) (QueryExecutor, error) {
			return nil, errors.New("boom")
		},
	})

	assert.True(t, IsRegistered("zz-stub"))
	assert.False(t, IsRegistered("oracle"))

	adapters := RegisteredAdapters()
	require.GreaterOrEqual(t, len(adapters), 2)
	assert.Equal(t, "aa-stub", adapters[0].Type)

	exec, err := NewQueryExecutor(context.Background(), Config{Type: "zz-stub", Database: "cdm"})
	require.NoError(t, err)
	assert.Equal(t, "cdm", exec.(*stubExecutor).cfg.Database)

	_, err = NewQueryExecutor(context.Background(), Config{Type: "aa-stub"})
	assert.EqualError(t, err, "boom")

	_, err = NewQueryExecutor(context.Background(), Config{Type: "oracle"})
	assert.ErrorIs(t, err, apperrors.ErrNoDatasource)
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(0))
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(-3))
	assert.Equal(t, 25, EffectiveLimit(25))
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(MaxQueryLimit+1))
}
