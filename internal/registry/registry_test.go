package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

func okCapability(output string) CapabilityFunc {
	return func(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error) {
		return []byte(output), nil
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(models.ModuleInfo{ID: "m1"}, okCapability("a")))

	err := r.Register(models.ModuleInfo{ID: "m1"}, okCapability("b"))
	assert.ErrorIs(t, err, ErrDuplicateModule)
}

func TestRegister_RequiresID(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(models.ModuleInfo{Name: "no id"}, okCapability("a")))
}

func TestResolve_Unknown(t *testing.T) {
	r := New()
	_, err := r.Resolve("ghost")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestInvoke_PassesConfigAndPrior(t *testing.T) {
	r := New()
	var gotConfig map[string]interface{}
	var gotPrior []byte
	require.NoError(t, r.Register(models.ModuleInfo{ID: "m1"}, CapabilityFunc(
		func(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error) {
			gotConfig = config
			gotPrior = prior
			return []byte("out"), nil
		})))

	out, err := r.Invoke(context.Background(), "m1", map[string]interface{}{"k": "v"}, []byte("prev"))
	require.NoError(t, err)
	assert.Equal(t, "out", string(out))
	assert.Equal(t, "v", gotConfig["k"])
	assert.Equal(t, "prev", string(gotPrior))
}

func TestInvoke_RequiredConfigKeys(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(models.ModuleInfo{
		ID: "scanner",
		InputSchema: map[string]interface{}{
			"required": []interface{}{"target"},
		},
	}, okCapability("report")))

	// Missing required key is rejected before the capability runs.
	_, err := r.Invoke(context.Background(), "scanner", map[string]interface{}{}, nil)
	var me *ModuleError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, KindInvalidConfig, me.Kind)
	assert.Contains(t, me.Message, "target")

	out, err := r.Invoke(context.Background(), "scanner", map[string]interface{}{"target": "example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "report", string(out))
}

func TestInvoke_NoSchemaAcceptsAnything(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(models.ModuleInfo{ID: "m1"}, okCapability("ok")))

	_, err := r.Invoke(context.Background(), "m1", nil, nil)
	assert.NoError(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&ModuleError{Kind: KindRetryable, Message: "busy"}))
	assert.True(t, Retryable(fmt.Errorf("step 1: %w", &ModuleError{Kind: KindRetryable})))
	assert.False(t, Retryable(&ModuleError{Kind: KindFailure, Message: "broken"}))
	assert.False(t, Retryable(&ModuleError{Kind: KindInvalidConfig}))
	assert.False(t, Retryable(errors.New("plain error")))
	assert.False(t, Retryable(nil))
}

func TestList(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(models.ModuleInfo{ID: "a", Name: "A"}, okCapability("")))
	require.NoError(t, r.Register(models.ModuleInfo{ID: "b", Name: "B"}, okCapability("")))

	infos := r.List()
	assert.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
