// Package pasteimport implements the convenience flow for turning a raw
// pasted credential blob into a stored Credential and Account. The
// provider-detection heuristic itself is out of scope for this repository
// (per the vault's external-interfaces contract) and is received here as
// an injected Detector.
package pasteimport

import (
	"github.com/Mindburn-Labs/credvault/pkg/vault"
)

// Detector runs the (externally supplied) provider-detection heuristic
// against a raw pasted string.
type Detector interface {
	Detect(raw string) (vault.Detection, error)
}

// Importer wires a Detector to a running vault Service.
type Importer struct {
	Vault    *vault.Service
	Detector Detector
}

// New constructs an Importer.
func New(v *vault.Service, d Detector) *Importer {
	return &Importer{Vault: v, Detector: d}
}

// Import runs detection on raw, then delegates to the vault service's
// CreateFromPaste to do account matching/creation and credential storage.
// overrides lets the caller pin fields (name, tags, description) the
// detector does not produce.
func (imp *Importer) Import(raw string, overrides vault.CreateInput) (vault.CreateFromPasteResult, *vault.Error) {
	detection, err := imp.Detector.Detect(raw)
	if err != nil {
		return vault.CreateFromPasteResult{}, &vault.Error{Kind: vault.KindInvalidInput, Message: err.Error()}
	}
	return imp.Vault.CreateFromPaste(detection, overrides)
}
