package cmd

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/state"
)

func TestRunRuntimeValidate(t *testing.T) {
	memFs := useFakeInstance(t, standardInstance())
	seedState(t, memFs)

	var buf bytes.Buffer
	runtimeValidateCmd.SetOut(&buf)
	require.NoError(t, runRuntimeValidate(runtimeValidateCmd, nil))

	out := buf.String()
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "incident")
	assert.Contains(t, out, "Verified 2/2 tables")

	st, err := state.NewStore(memFs, "/state", state.Scope{Platform: "servicenow"}, logger.NewNop()).Load()
	require.NoError(t, err)
	assert.True(t, st.Known["problem"].Verified)
	assert.Equal(t, 0.9, st.Known["problem"].Evidence.Confidence)
}

func TestRunRuntimeValidate_Failure(t *testing.T) {
	denying := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	memFs := useFakeInstance(t, denying)
	seedState(t, memFs)

	var buf bytes.Buffer
	runtimeValidateCmd.SetOut(&buf)
	require.NoError(t, runRuntimeValidate(runtimeValidateCmd, nil))

	assert.Contains(t, buf.String(), "failed")
	assert.Contains(t, buf.String(), "Verified 0/2 tables")
}
