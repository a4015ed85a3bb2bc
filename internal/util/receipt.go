package util

import "fmt"

// ReceiptStatus mirrors the JSON-RPC receipt "status" field: "0x1" success,
// "0x0" reverted.
func ReceiptStatus(hexStatus string) (uint64, error) {
	var status uint64
	if hexStatus == "" {
		return 0, fmt.Errorf("util: empty receipt status")
	}
	_, err := fmt.Sscanf(hexStatus, "0x%x", &status)
	if err != nil {
		return 0, fmt.Errorf("util: parse receipt status %q: %w", hexStatus, err)
	}
	return status, nil
}
