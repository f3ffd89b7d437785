package vault

import (
	"encoding/json"

	"github.com/Mindburn-Labs/credvault/pkg/policy"
	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// CreateInput is the payload for creating a credential. Secret is required
// and is never retained in plaintext beyond this call.
type CreateInput struct {
	Name        string
	Description string
	Tags        []string
	Category    store.Category
	Provider    string
	Secret      store.Secret
	AccountID   string
}

// Create seals Secret, assigns an ID and secretRef, persists, and emits
// credential.created.
func (s *Service) Create(in CreateInput) (store.Credential, *Error) {
	if in.Name == "" {
		return store.Credential{}, errInvalidInput("missing name")
	}
	if !store.ValidCategory(in.Category) {
		return store.Credential{}, errInvalidInput("invalid category")
	}

	s.store.Lock()

	plaintext, err := json.Marshal(in.Secret)
	if err != nil {
		s.store.Unlock()
		return store.Credential{}, errInvalidInput("invalid secret: %v", err)
	}

	id := s.newID()
	if err := s.store.SealSecret(id, plaintext); err != nil {
		s.store.Unlock()
		return store.Credential{}, errIO("write", err)
	}

	now := s.nowMs()
	cred := store.Credential{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Tags:        in.Tags,
		Category:    in.Category,
		Provider:    in.Provider,
		SecretKind:  in.Secret.Kind,
		SecretRef:   id,
		Enabled:     true,
		CreatedAtMs: now,
		UpdatedAtMs: now,
		AccountID:   in.AccountID,
	}
	if s.defaultRuleText != nil {
		for _, text := range s.defaultRuleText(string(in.Category)) {
			cred.PermissionRules = append(cred.PermissionRules, store.PermissionRule{
				ID:                  s.newID(),
				Text:                text,
				CompiledConstraints: policy.Compile(text),
				CreatedAtMs:         now,
				Enabled:             true,
			})
		}
	}
	s.store.File.Credentials = append(s.store.File.Credentials, cred)

	if in.AccountID != "" {
		if acct := s.store.FindAccount(in.AccountID); acct != nil {
			acct.CredentialIDs = append(acct.CredentialIDs, id)
			acct.UpdatedAtMs = now
		}
	}

	if err := s.store.Save(); err != nil {
		s.store.RemoveCredential(id)
		s.store.Unlock()
		return store.Credential{}, errIO("write", err)
	}
	s.store.Unlock()

	// Publish only after the write lock is released (spec.md §5): the
	// broadcaster's delivery must never hold up another goroutine's checkout
	// or read.
	s.events.Publish(eventCredentialCreated(id, in.Name))
	return cred, nil
}

// Get returns the credential record with no secret material. NOT_FOUND is
// not an error here per spec.md §4.6 (the table lists no error); callers
// distinguish via the bool.
func (s *Service) Get(id string) (store.Credential, bool) {
	s.store.RLock()
	defer s.store.RUnlock()
	cred := s.store.FindCredential(id)
	if cred == nil {
		return store.Credential{}, false
	}
	return *cred, true
}

// ListFilter narrows List's result set.
type ListFilter struct {
	Category  store.Category
	Provider  string
	Enabled   *bool
	AccountID string
	AgentID   string // when set, only credentials this agent may see via grant/profile
	Limit     int
}

// List returns credentials matching filter. An AgentID filter restricts to
// credentials reachable through a direct grant or a profile account
// binding (it does not require an active lease — leases are ephemeral and
// listing is a discovery operation, not a checkout).
func (s *Service) List(filter ListFilter) []store.Credential {
	s.store.RLock()
	defer s.store.RUnlock()

	var visible map[string]bool
	if filter.AgentID != "" {
		visible = s.visibleCredentialIDsLocked(filter.AgentID)
	}

	var out []store.Credential
	for _, c := range s.store.File.Credentials {
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		if filter.Provider != "" && c.Provider != filter.Provider {
			continue
		}
		if filter.Enabled != nil && c.Enabled != *filter.Enabled {
			continue
		}
		if filter.AccountID != "" && c.AccountID != filter.AccountID {
			continue
		}
		if visible != nil && !visible[c.ID] {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// visibleCredentialIDsLocked is the shared implementation behind List's
// agentId filter and resolveAgentCredentialIds; callers must already hold
// at least the read lock.
func (s *Service) visibleCredentialIDsLocked(agentID string) map[string]bool {
	visible := make(map[string]bool)
	for _, c := range s.store.File.Credentials {
		for _, g := range c.AccessGrants {
			if g.AgentID == agentID {
				visible[c.ID] = true
			}
		}
	}
	if profile := s.store.FindProfile(agentID); profile != nil {
		for _, id := range profile.DirectGrants {
			visible[id] = true
		}
		for _, b := range profile.AccountBindings {
			for _, c := range s.store.File.Credentials {
				if c.AccountID != b.AccountID {
					continue
				}
				if b.Restrictions != nil && len(b.Restrictions.CredentialIDs) > 0 {
					if !containsStr(b.Restrictions.CredentialIDs, c.ID) {
						continue
					}
				}
				visible[c.ID] = true
			}
		}
	}
	return visible
}

func containsStr(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// UpdatePatch carries mutable non-secret fields; a nil pointer field means
// "leave unchanged".
type UpdatePatch struct {
	Name        *string
	Description *string
	Tags        *[]string
	Provider    *string
	Category    *store.Category
}

// Update applies patch to credential id.
func (s *Service) Update(id string, patch UpdatePatch) (store.Credential, *Error) {
	s.store.Lock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		s.store.Unlock()
		return store.Credential{}, errNotFound("credential", id)
	}
	if patch.Category != nil && !store.ValidCategory(*patch.Category) {
		s.store.Unlock()
		return store.Credential{}, errInvalidInput("invalid category")
	}

	if patch.Name != nil {
		cred.Name = *patch.Name
	}
	if patch.Description != nil {
		cred.Description = *patch.Description
	}
	if patch.Tags != nil {
		cred.Tags = *patch.Tags
	}
	if patch.Provider != nil {
		cred.Provider = *patch.Provider
	}
	if patch.Category != nil {
		cred.Category = *patch.Category
	}
	cred.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return store.Credential{}, errIO("write", err)
	}
	updated := *cred
	s.store.Unlock()

	s.events.Publish(eventCredentialUpdated(id))
	return updated, nil
}

// Delete removes the credential and its envelope, nulling the back-pointer
// on any owning account.
func (s *Service) Delete(id string) *Error {
	s.store.Lock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		s.store.Unlock()
		return nil
	}
	if cred.AccountID != "" {
		if acct := s.store.FindAccount(cred.AccountID); acct != nil {
			acct.CredentialIDs = removeStr(acct.CredentialIDs, id)
			acct.UpdatedAtMs = s.nowMs()
		}
	}
	s.store.RemoveCredential(id)

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventCredentialDeleted(id))
	return nil
}

func removeStr(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// RotateSecret reseals newSecret under the credential's existing secretRef
// (an overwrite, not a versioned chain — see DESIGN.md) and bumps
// validatedAtMs.
func (s *Service) RotateSecret(id string, newSecret store.Secret) *Error {
	s.store.Lock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		s.store.Unlock()
		return errNotFound("credential", id)
	}

	plaintext, err := json.Marshal(newSecret)
	if err != nil {
		s.store.Unlock()
		return errInvalidInput("invalid secret: %v", err)
	}
	if err := s.store.SealSecret(cred.SecretRef, plaintext); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}

	now := s.nowMs()
	cred.SecretKind = newSecret.Kind
	cred.ValidatedAtMs = now
	cred.UpdatedAtMs = now

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventCredentialRotated(id))
	return nil
}

// Enable/Disable toggle the credential's enabled flag.
func (s *Service) Enable(id string) *Error  { return s.setEnabled(id, true) }
func (s *Service) Disable(id string) *Error { return s.setEnabled(id, false) }

func (s *Service) setEnabled(id string, enabled bool) *Error {
	s.store.Lock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		s.store.Unlock()
		return errNotFound("credential", id)
	}
	cred.Enabled = enabled
	cred.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventCredentialUpdated(id))
	return nil
}

// GrantAccess adds agentID to the credential's legacy direct-grant list,
// idempotently.
func (s *Service) GrantAccess(id, agentID string) *Error {
	s.store.Lock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		s.store.Unlock()
		return errNotFound("credential", id)
	}
	for _, g := range cred.AccessGrants {
		if g.AgentID == agentID {
			s.store.Unlock()
			return nil
		}
	}
	cred.AccessGrants = append(cred.AccessGrants, store.AccessGrant{
		AgentID: agentID, GrantedAtMs: s.nowMs(), GrantedBy: SystemAgentID,
	})
	cred.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventCredentialGrantAdded(id, agentID))
	return nil
}

// RevokeAccess removes agentID from the credential's direct-grant list,
// idempotently.
func (s *Service) RevokeAccess(id, agentID string) *Error {
	s.store.Lock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		s.store.Unlock()
		return errNotFound("credential", id)
	}
	kept := cred.AccessGrants[:0]
	for _, g := range cred.AccessGrants {
		if g.AgentID != agentID {
			kept = append(kept, g)
		}
	}
	cred.AccessGrants = kept
	cred.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventCredentialGrantRevoked(id, agentID))
	return nil
}

// AddRule compiles text and appends a new enabled PermissionRule.
func (s *Service) AddRule(id, text string) (store.PermissionRule, *Error) {
	s.store.Lock()
	defer s.store.Unlock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		return store.PermissionRule{}, errNotFound("credential", id)
	}

	rule := store.PermissionRule{
		ID:                  s.newID(),
		Text:                text,
		CompiledConstraints: policy.Compile(text),
		CreatedAtMs:         s.nowMs(),
		Enabled:             true,
	}
	cred.PermissionRules = append(cred.PermissionRules, rule)
	cred.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		return store.PermissionRule{}, errIO("write", err)
	}
	return rule, nil
}

// UpdateRule replaces rule ruleID's text (recompiling) and/or its enabled
// flag.
func (s *Service) UpdateRule(id, ruleID string, text *string, enabled *bool) *Error {
	s.store.Lock()
	defer s.store.Unlock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		return errNotFound("credential", id)
	}
	for i := range cred.PermissionRules {
		if cred.PermissionRules[i].ID != ruleID {
			continue
		}
		if text != nil {
			cred.PermissionRules[i].Text = *text
			cred.PermissionRules[i].CompiledConstraints = policy.Compile(*text)
		}
		if enabled != nil {
			cred.PermissionRules[i].Enabled = *enabled
		}
		cred.UpdatedAtMs = s.nowMs()
		if err := s.store.Save(); err != nil {
			return errIO("write", err)
		}
		return nil
	}
	return errNotFound("permission rule", ruleID)
}

// RemoveRule deletes a PermissionRule from a credential.
func (s *Service) RemoveRule(id, ruleID string) *Error {
	s.store.Lock()
	defer s.store.Unlock()

	cred := s.store.FindCredential(id)
	if cred == nil {
		return errNotFound("credential", id)
	}
	kept := cred.PermissionRules[:0]
	found := false
	for _, r := range cred.PermissionRules {
		if r.ID == ruleID {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return errNotFound("permission rule", ruleID)
	}
	cred.PermissionRules = kept
	cred.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		return errIO("write", err)
	}
	return nil
}
