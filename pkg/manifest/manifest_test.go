package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sendManifest = `{
  "version": 0,
  "debotAddress": "0:af5acb55481ebd9c923c11462ea6ab068508a0e05aacd8a9c33bb5b0cabcc33c",
  "initMethod": "invokeSend",
  "initArgs": {"dest": "0:af5a", "amount": 500000000, "bounce": false},
  "quiet": true,
  "autoApprove": ["ApproveOnChainCall"],
  "abi": {"ABI version": 2, "functions": []},
  "chain": [
    {"type": "Input", "interface": "a1d347099e29c1624c8890619daf207bde18e92df5220a54bcc6d858309ece84", "method": "get", "params": {"value": "1500000000"}},
    {"type": "SigningBox", "handle": 3},
    {"type": "OnchainCall", "approve": true, "iflq": "1000"}
  ]
}`

func TestParseJSONManifest(t *testing.T) {
	m, err := Parse([]byte(sendManifest))
	require.NoError(t, err)

	assert.Equal(t, "invokeSend", m.InitMethod)
	assert.True(t, m.Quiet)
	assert.True(t, m.AutoApproves(ApproveOnChainCall))
	assert.JSONEq(t, `{"dest": "0:af5a", "amount": 500000000, "bounce": false}`, string(m.InitArgs))
	require.Len(t, m.Chain, 3)

	assert.Equal(t, LinkInput, m.Chain[0].Kind)
	assert.Equal(t, "get", m.Chain[0].Method)
	assert.False(t, m.Chain[0].Mandatory)
	assert.JSONEq(t, `{"value": "1500000000"}`, string(m.Chain[0].Params))

	assert.Equal(t, SigningBox(3), m.Chain[1])
	assert.Equal(t, OnchainCall(true), m.Chain[2])
}

func TestParseYAMLManifest(t *testing.T) {
	data := `
debotAddress: "0:2d2696edfe3d7c0d74e8900b2a43ac362de5a45db6fe6147177e2fcd2abfd3e2"
initMethod: start
quiet: false
chain:
  - kind: input
    interface: ac1a4d3ecea232e49783df4a23a81823cdca3205dc58cd20c4db259c25605b48
    method: select
    mandatory: true
    params:
      index: 3
  - kind: signing_box
    handle: 1
  - kind: onchain_call
    approve: false
`
	m, err := Parse([]byte(data))
	require.NoError(t, err)

	require.Len(t, m.Chain, 3)
	assert.True(t, m.Chain[0].Mandatory)
	assert.JSONEq(t, `{"index": 3}`, string(m.Chain[0].Params))
	assert.Equal(t, LinkSigningBox, m.Chain[1].Kind)
	assert.Equal(t, OnchainCall(false), m.Chain[2])
}

func TestParseSnakeCaseManifest(t *testing.T) {
	data := `{
  "debot_address": "0:1111111111111111111111111111111111111111111111111111111111111111",
  "init_method": "transfer",
  "init_args": {"amount": 7},
  "quiet": true,
  "auto_approve": ["ApproveOnChainCall"],
  "chain": [{"kind": "onchain_call", "approve": true}]
}`
	m, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "0:1111111111111111111111111111111111111111111111111111111111111111", m.DebotAddress)
	assert.Equal(t, "transfer", m.InitMethod)
	assert.JSONEq(t, `{"amount": 7}`, string(m.InitArgs))
	assert.True(t, m.Quiet)
	assert.True(t, m.AutoApproves(ApproveOnChainCall))
	assert.Equal(t, []ChainLink{OnchainCall(true)}, m.Chain)

	m, err = Parse([]byte("debot_address: \"0:ab\"\ninit_msg: raw\nchain: []\n"))
	require.NoError(t, err)
	assert.Equal(t, "0:ab", m.DebotAddress)
	assert.Equal(t, "raw", m.InitMsg)

	m, err = Parse([]byte(`{"debotAddress": "0:01", "debot_address": "0:02", "initMethod": "start", "chain": []}`))
	require.NoError(t, err)
	assert.Equal(t, "0:01", m.DebotAddress)
}

func TestParseRejectsInvalidLinks(t *testing.T) {
	tests := []struct {
		name string
		link string
	}{
		{name: "missing type", link: `{"interface": "x"}`},
		{name: "unknown type", link: `{"type": "Teleport"}`},
		{name: "input without interface", link: `{"type": "Input", "method": "get"}`},
		{name: "signing box without handle", link: `{"type": "SigningBox"}`},
		{name: "onchain call without approve", link: `{"type": "OnchainCall"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var link ChainLink
			require.Error(t, json.Unmarshal([]byte(tt.link), &link))
		})
	}
}

func TestParseRejectsIncompleteManifest(t *testing.T) {
	_, err := Parse([]byte(`{"initMethod": "start", "chain": []}`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"debotAddress": "0:01", "chain": []}`))
	require.Error(t, err)

	_, err = Parse([]byte("  "))
	require.Error(t, err)
}

func TestChainLinkJSONShape(t *testing.T) {
	links := []ChainLink{
		Input("abc", "get", json.RawMessage(`{"value":1}`), true),
		SigningBox(5),
		OnchainCall(false),
	}

	data, err := json.Marshal(links)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"Input","interface":"abc","method":"get","params":{"value":1},"mandatory":true},
		{"type":"SigningBox","handle":5},
		{"type":"OnchainCall","approve":false}
	]`, string(data))
}

func TestLoadManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(sendManifest), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0:af5acb55481ebd9c923c11462ea6ab068508a0e05aacd8a9c33bb5b0cabcc33c", m.DebotAddress)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestWithSigningBox(t *testing.T) {
	m := Manifest{Chain: []ChainLink{
		SigningBox(1),
		Input("8796536366ee21852db56dccb60bc564598b618c865fc50c8b1ab740bba128e3", "input", nil, false),
		SigningBox(2),
	}}

	out := m.WithSigningBox(5)
	assert.Equal(t, uint32(5), out.Chain[0].Handle)
	assert.Equal(t, uint32(0), out.Chain[1].Handle)
	assert.Equal(t, uint32(5), out.Chain[2].Handle)
	assert.Equal(t, uint32(1), m.Chain[0].Handle, "original chain is not modified")
}
