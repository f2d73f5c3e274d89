package evmkit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is the compiled form of one contract. The ABI is kept as the exact
// JSON the toolchain produced so that binding layers receive it unmodified.
type Artifact struct {
	ContractName     string
	ABI              json.RawMessage
	Bytecode         []byte
	DeployedBytecode []byte
	CompilerVersion  string
}

// ParsedABI decodes the ABI JSON.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(a.ABI))
}

// ParseABI parses a JSON ABI string into an abi.ABI.
func ParseABI(abiJSON string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
}

// MustParseABI is like ParseABI but panics on error.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}

// artifactFile covers both Foundry (bytecode.object) and Hardhat (bytecode
// string) artifact layouts.
type artifactFile struct {
	ContractName     string          `json:"contractName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         json.RawMessage `json:"bytecode"`
	DeployedBytecode json.RawMessage `json:"deployedBytecode"`
	Metadata         json.RawMessage `json:"metadata"`
}

// LoadArtifact reads a Foundry (out/Name.sol/Name.json) or Hardhat artifact.
// Foundry artifacts carry no contract name, so the file name is used.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("evmkit: read artifact: %w", err)
	}

	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("evmkit: parse artifact %s: %w", path, err)
	}
	if len(file.ABI) == 0 {
		return nil, fmt.Errorf("evmkit: artifact %s has no abi", path)
	}

	bytecode, err := decodeArtifactBytecode(file.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("evmkit: artifact %s bytecode: %w", path, err)
	}
	deployed, err := decodeArtifactBytecode(file.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("evmkit: artifact %s deployedBytecode: %w", path, err)
	}

	name := file.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &Artifact{
		ContractName:     name,
		ABI:              file.ABI,
		Bytecode:         bytecode,
		DeployedBytecode: deployed,
		CompilerVersion:  metadataCompilerVersion(file.Metadata),
	}, nil
}

func decodeArtifactBytecode(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var code string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &code); err != nil {
			return nil, err
		}
	} else {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		code = obj.Object
	}
	return decodeBytecodeHex(code)
}

// decodeBytecodeHex accepts hex with or without 0x. Unlinked library
// placeholders (__$...$__) are reported rather than silently mangled.
func decodeBytecodeHex(code string) ([]byte, error) {
	code = strings.TrimSpace(code)
	if strings.Contains(code, "__") {
		return nil, errors.New("bytecode has unlinked library references")
	}
	if code == "" || code == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	return hexutil.Decode(code)
}

// metadataCompilerVersion pulls compiler.version out of solc metadata, which
// Foundry embeds as an object and Hardhat omits.
func metadataCompilerVersion(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var meta struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		raw = json.RawMessage(s)
	}
	if json.Unmarshal(raw, &meta) != nil {
		return ""
	}
	return meta.Compiler.Version
}

// MarshalJSON writes the Hardhat layout, which LoadArtifact reads back.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	abiJSON := a.ABI
	if len(abiJSON) == 0 {
		abiJSON = json.RawMessage("[]")
	}
	file := struct {
		ContractName     string          `json:"contractName"`
		ABI              json.RawMessage `json:"abi"`
		Bytecode         string          `json:"bytecode"`
		DeployedBytecode string          `json:"deployedBytecode"`
		Metadata         json.RawMessage `json:"metadata,omitempty"`
	}{
		ContractName:     a.ContractName,
		ABI:              abiJSON,
		Bytecode:         hexutil.Encode(a.Bytecode),
		DeployedBytecode: hexutil.Encode(a.DeployedBytecode),
	}
	if a.CompilerVersion != "" {
		meta, err := json.Marshal(map[string]map[string]string{"compiler": {"version": a.CompilerVersion}})
		if err != nil {
			return nil, err
		}
		file.Metadata = meta
	}
	return json.Marshal(file)
}

// SaveArtifact writes a to path as indented JSON.
func SaveArtifact(path string, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("evmkit: encode artifact: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("evmkit: write artifact: %w", err)
	}
	return nil
}
