package store

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/Mindburn-Labs/credvault/pkg/envelope"
)

func sealProbeForTest(passphrase []byte) (*envelope.Envelope, error) {
	return envelope.Seal(passphrase, []byte(ProbeText))
}

func writeJSONFile(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal test fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write test fixture: %v", err)
	}
}
