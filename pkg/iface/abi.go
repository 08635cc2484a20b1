package iface

const echoABI = `{
	"ABI version": 2,
	"header": ["time"],
	"functions": [
		{"name": "echo", "inputs": [{"name":"answerId","type":"uint32"},{"name":"request","type":"bytes"}], "outputs": [{"name":"response","type":"bytes"}]}
	]
}`

const userInfoABI = `{
	"ABI version": 2,
	"version": "2.2",
	"header": ["time"],
	"functions": [
		{"name": "getAccount", "id": "0x2e4fec08", "inputs": [{"name":"answerId","type":"uint32"}], "outputs": [{"name":"value","type":"address"}]},
		{"name": "getPublicKey", "id": "0x2c5b2088", "inputs": [{"name":"answerId","type":"uint32"}], "outputs": [{"name":"value","type":"uint256"}]},
		{"name": "getSigningBox", "id": "0x11f1f7db", "inputs": [{"name":"answerId","type":"uint32"}], "outputs": [{"name":"handle","type":"uint32"}]}
	]
}`

const terminalABI = `{
	"ABI version": 2,
	"header": ["time"],
	"functions": [
		{"name": "print", "inputs": [{"name":"answerId","type":"uint32"},{"name":"message","type":"string"}], "outputs": []},
		{"name": "printf", "inputs": [{"name":"answerId","type":"uint32"},{"name":"fmt","type":"string"},{"name":"fargs","type":"cell"}], "outputs": []},
		{"name": "input", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"},{"name":"multiline","type":"bool"}], "outputs": [{"name":"value","type":"string"}]},
		{"name": "inputInt", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"}], "outputs": [{"name":"value","type":"int256"}]},
		{"name": "inputUint", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"}], "outputs": [{"name":"value","type":"uint256"}]},
		{"name": "inputBoolean", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"}], "outputs": [{"name":"value","type":"bool"}]}
	]
}`

const menuABI = `{
	"ABI version": 2,
	"header": ["time"],
	"functions": [
		{"name": "select", "inputs": [{"name":"title","type":"string"},{"name":"description","type":"string"},{"components":[{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"handlerId","type":"uint32"}],"name":"items","type":"tuple[]"}], "outputs": [{"name":"index","type":"uint32"}]}
	]
}`

const amountInputABI = `{
	"ABI version": 2,
	"header": ["time"],
	"functions": [
		{"name": "get", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"},{"name":"decimals","type":"uint8"},{"name":"min","type":"uint128"},{"name":"max","type":"uint128"}], "outputs": [{"name":"value","type":"uint128"}]}
	]
}`

const confirmInputABI = `{
	"ABI version": 2,
	"header": ["time"],
	"functions": [
		{"name": "get", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"}], "outputs": [{"name":"value","type":"bool"}]}
	]
}`

const addressInputABI = `{
	"ABI version": 2,
	"header": ["time"],
	"functions": [
		{"name": "get", "inputs": [{"name":"answerId","type":"uint32"},{"name":"prompt","type":"string"}], "outputs": [{"name":"value","type":"address"}]}
	]
}`
