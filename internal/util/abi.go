// Package util holds small cross-cutting helpers: ABI loading, secret
// decryption, receipt status parsing, USD/decimals math, and jitter/backoff
// timing.
package util

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// hardhatArtifact is the shape of a Hardhat compilation artifact: the ABI
// lives under the "abi" key alongside bytecode and metadata we don't need.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABI parses a bare ABI JSON file (just the array of ABI entries).
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read abi file %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse abi file %s: %w", path, err)
	}
	return parsed, nil
}

// LoadABIFromHardhatArtifact parses a Hardhat artifact JSON file and
// extracts its "abi" field.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read artifact %s: %w", path, err)
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse artifact %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse artifact abi %s: %w", path, err)
	}
	return parsed, nil
}
