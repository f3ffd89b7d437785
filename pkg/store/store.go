package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Mindburn-Labs/credvault/pkg/envelope"
)

// ProbeText is sealed under the master passphrase at init time and stored as
// File.MasterKeyCheck; opening the store re-derives the key against this
// envelope before touching any credential secret.
const ProbeText = "credential-vault-master-key-probe-v1"

// Sentinel errors surfaced by Open/Save. Callers in pkg/vault translate
// these into the canonical *vault.Error taxonomy.
var (
	ErrWrongKey           = envelope.ErrWrongKey
	ErrCorruptFile        = errors.New("store: corrupt store file")
	ErrUnsupportedVersion = errors.New("store: unsupported store file version")
)

// Store owns one store file on disk: its decrypted-on-demand secrets map,
// atomic persistence, and the lock that serializes writers against the
// lease-expiry tick. Reads may proceed concurrently with each other; callers
// hold the write lock around every mutation and Save, matching the single-process
// concurrency model the vault service relies on.
type Store struct {
	mu   sync.RWMutex
	path string

	masterKey []byte // the raw passphrase, used by SealSecret and OpenSecret

	File *File
}

// Open reads path, migrating older formats and verifying passphrase against
// the embedded probe. If path does not exist, a fresh v3 file is created and
// immediately persisted with a new masterKeyCheck sealed under passphrase.
func Open(path string, passphrase []byte) (*Store, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("store: %w: empty passphrase", envelope.ErrWrongKey)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s := &Store{
			path:      path,
			masterKey: append([]byte{}, passphrase...),
			File: &File{
				Version:       CurrentVersion,
				Credentials:   []Credential{},
				Secrets:       map[string]*envelope.Envelope{},
				Accounts:      []Account{},
				AgentProfiles: []AgentCredentialProfile{},
			},
		}
		probeEnv, err := envelope.Seal(passphrase, []byte(ProbeText))
		if err != nil {
			return nil, fmt.Errorf("store: seal probe: %w", err)
		}
		s.File.MasterKeyCheck = probeEnv
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	if err := validateStructure(raw); err != nil {
		return nil, err
	}

	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	if file.Version == 2 && file.LegacyAccessGrants == nil {
		var v2 struct {
			AccessGrants map[string][]AccessGrant `json:"accessGrants"`
		}
		if err := json.Unmarshal(raw, &v2); err != nil {
			return nil, fmt.Errorf("%w: v2 accessGrants: %v", ErrCorruptFile, err)
		}
		file.LegacyAccessGrants = v2.AccessGrants
	}

	if err := migrate(&file); err != nil {
		return nil, err
	}

	if file.MasterKeyCheck == nil {
		return nil, fmt.Errorf("%w: missing masterKeyCheck", ErrCorruptFile)
	}
	if err := envelope.VerifyProbe(passphrase, file.MasterKeyCheck, ProbeText); err != nil {
		return nil, err
	}

	return &Store{
		path:      path,
		masterKey: append([]byte{}, passphrase...),
		File:      &file,
	}, nil
}

// migrate upgrades file in place to CurrentVersion, rejecting versions older
// than the one migration step this package supports.
func migrate(file *File) error {
	switch file.Version {
	case CurrentVersion:
		return nil
	case 2:
		// v2 -> v3: add the accounts and agentProfiles arrays. The v2
		// top-level accessGrants block, if present, has already been copied
		// verbatim into LegacyAccessGrants by Open; it is not promoted into
		// profiles.
		if file.Accounts == nil {
			file.Accounts = []Account{}
		}
		if file.AgentProfiles == nil {
			file.AgentProfiles = []AgentCredentialProfile{}
		}
		file.Version = CurrentVersion
		return nil
	default:
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, file.Version)
	}
}

// save writes the store atomically: marshal, write to a sibling .tmp file,
// fsync, then rename over the target. The rename is what makes a crash
// mid-write leave the previous file intact instead of a half-written one.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.File, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("store: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// Save persists the current in-memory File. It does not take the lock
// itself: callers (pkg/vault, including the lease-expiry tick) already hold
// the write lock via Lock for the whole mutate-then-save sequence, and the
// underlying sync.RWMutex is not re-entrant.
func (s *Store) Save() error {
	return s.save()
}

// RLock/RUnlock expose the read lock so pkg/vault can serialize a read
// against concurrent writers without copying the whole File.
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }
func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }

// SealSecret encrypts plaintext under the store's master passphrase and
// records the resulting envelope under ref, overwriting any prior envelope
// at that ref (used both for initial creation and for rotateSecret, which
// the spec defines as an overwrite, not a versioned chain).
func (s *Store) SealSecret(ref string, plaintext []byte) error {
	env, err := envelope.Seal(s.masterKey, plaintext)
	if err != nil {
		return fmt.Errorf("store: seal secret %s: %w", ref, err)
	}
	s.File.Secrets[ref] = env
	return nil
}

// OpenSecret decrypts the envelope stored under ref. The passphrase has
// already been proven correct via Open's probe check, so any failure here
// is classified as a corrupt envelope rather than a wrong key.
func (s *Store) OpenSecret(ref string) ([]byte, error) {
	env, ok := s.File.Secrets[ref]
	if !ok {
		return nil, fmt.Errorf("%w: no secret at ref %s", ErrCorruptFile, ref)
	}
	return envelope.Open(s.masterKey, env, true)
}

// DeleteSecret removes the envelope at ref, if any.
func (s *Store) DeleteSecret(ref string) {
	delete(s.File.Secrets, ref)
}

// FindCredential returns a pointer into File.Credentials by ID, or nil.
func (s *Store) FindCredential(id string) *Credential {
	for i := range s.File.Credentials {
		if s.File.Credentials[i].ID == id {
			return &s.File.Credentials[i]
		}
	}
	return nil
}

// FindAccount returns a pointer into File.Accounts by ID, or nil.
func (s *Store) FindAccount(id string) *Account {
	for i := range s.File.Accounts {
		if s.File.Accounts[i].ID == id {
			return &s.File.Accounts[i]
		}
	}
	return nil
}

// FindProfile returns a pointer into File.AgentProfiles by agent ID, or nil.
func (s *Store) FindProfile(agentID string) *AgentCredentialProfile {
	for i := range s.File.AgentProfiles {
		if s.File.AgentProfiles[i].AgentID == agentID {
			return &s.File.AgentProfiles[i]
		}
	}
	return nil
}

// RemoveCredential deletes the credential at id (and its secret envelope)
// from the in-memory File. Reports whether a credential was found.
func (s *Store) RemoveCredential(id string) bool {
	for i := range s.File.Credentials {
		if s.File.Credentials[i].ID == id {
			ref := s.File.Credentials[i].SecretRef
			s.File.Credentials = append(s.File.Credentials[:i], s.File.Credentials[i+1:]...)
			s.DeleteSecret(ref)
			return true
		}
	}
	return false
}
