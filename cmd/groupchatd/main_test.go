package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
providers:
  llms:
    local:
      type: ollama
      model: llama3
agents:
  sup:
    agent_id: sup
    name: Supervisor
    provider_id: local
  worker:
    agent_id: worker
    name: Worker
    provider_id: local
groups:
  g1:
    group_id: g1
    name: group-1
    supervisor_id: sup
    member_ids: [sup, worker]
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "groupchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidateCmd_AcceptsWellFormedConfig(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)
	cli := &CLI{Config: path}
	cmd := &ValidateCmd{}

	err := cmd.Run(cli)
	assert.NoError(t, err)
}

func TestValidateCmd_RejectsConfigWithUnknownSupervisor(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  llms:
    local:
      type: ollama
      model: llama3
agents:
  worker:
    agent_id: worker
    name: Worker
    provider_id: local
groups:
  g1:
    group_id: g1
    name: group-1
    supervisor_id: missing
    member_ids: [worker]
`)
	cli := &CLI{Config: path}
	cmd := &ValidateCmd{}

	err := cmd.Run(cli)
	assert.Error(t, err)
}

func TestValidateCmd_MissingFileIsAnError(t *testing.T) {
	cli := &CLI{Config: filepath.Join(t.TempDir(), "does-not-exist.yaml")}
	cmd := &ValidateCmd{}

	err := cmd.Run(cli)
	assert.Error(t, err)
}
