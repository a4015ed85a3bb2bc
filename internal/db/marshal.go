package db

import (
	"encoding/json"
	"fmt"

	swtypes "swapwatch/pkg/types"
)

func marshalRules(rules []swtypes.Rule) (string, error) {
	b, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	return string(b), nil
}

func marshalPayload(payload swtypes.AlertPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}
