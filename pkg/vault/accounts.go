package vault

import "github.com/Mindburn-Labs/credvault/pkg/store"

// CreateAccountInput is the payload for creating an account.
type CreateAccountInput struct {
	Name     string
	Provider string
	Icon     string
	Email    string
	Tags     []string
	Metadata map[string]string
}

// CreateAccount creates a new, empty account.
func (s *Service) CreateAccount(in CreateAccountInput) (store.Account, *Error) {
	if in.Name == "" {
		return store.Account{}, errInvalidInput("missing name")
	}

	s.store.Lock()

	now := s.nowMs()
	acct := store.Account{
		ID:            s.newID(),
		Name:          in.Name,
		Provider:      in.Provider,
		Icon:          in.Icon,
		Email:         in.Email,
		Tags:          in.Tags,
		Metadata:      in.Metadata,
		CredentialIDs: []string{},
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
	}
	s.store.File.Accounts = append(s.store.File.Accounts, acct)

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return store.Account{}, errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventAccountCreated(acct.ID))
	return acct, nil
}

// GetAccount returns an account by ID.
func (s *Service) GetAccount(id string) (store.Account, bool) {
	s.store.RLock()
	defer s.store.RUnlock()
	acct := s.store.FindAccount(id)
	if acct == nil {
		return store.Account{}, false
	}
	return *acct, true
}

// ListAccounts returns every account.
func (s *Service) ListAccounts() []store.Account {
	s.store.RLock()
	defer s.store.RUnlock()
	out := make([]store.Account, len(s.store.File.Accounts))
	copy(out, s.store.File.Accounts)
	return out
}

// AccountUpdatePatch carries mutable account fields.
type AccountUpdatePatch struct {
	Name     *string
	Icon     *string
	Email    *string
	Tags     *[]string
	Metadata map[string]string // merged, not replaced
}

// UpdateAccount applies patch to account id.
func (s *Service) UpdateAccount(id string, patch AccountUpdatePatch) (store.Account, *Error) {
	s.store.Lock()

	acct := s.store.FindAccount(id)
	if acct == nil {
		s.store.Unlock()
		return store.Account{}, errNotFound("account", id)
	}
	if patch.Name != nil {
		acct.Name = *patch.Name
	}
	if patch.Icon != nil {
		acct.Icon = *patch.Icon
	}
	if patch.Email != nil {
		acct.Email = *patch.Email
	}
	if patch.Tags != nil {
		acct.Tags = *patch.Tags
	}
	if patch.Metadata != nil {
		if acct.Metadata == nil {
			acct.Metadata = map[string]string{}
		}
		for k, v := range patch.Metadata {
			acct.Metadata[k] = v
		}
	}
	acct.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return store.Account{}, errIO("write", err)
	}
	updated := *acct
	s.store.Unlock()

	s.events.Publish(eventAccountUpdated(id))
	return updated, nil
}

// DeleteAccount removes the account and nulls accountId on every
// credential that pointed to it; it does not delete those credentials.
func (s *Service) DeleteAccount(id string) *Error {
	s.store.Lock()

	found := false
	kept := s.store.File.Accounts[:0]
	for _, a := range s.store.File.Accounts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		s.store.Unlock()
		return errNotFound("account", id)
	}
	s.store.File.Accounts = kept

	for i := range s.store.File.Credentials {
		if s.store.File.Credentials[i].AccountID == id {
			s.store.File.Credentials[i].AccountID = ""
			s.store.File.Credentials[i].UpdatedAtMs = s.nowMs()
		}
	}

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventAccountDeleted(id))
	return nil
}

// AddCredentialToAccount binds credentialID to accountID on both sides.
func (s *Service) AddCredentialToAccount(accountID, credentialID string) *Error {
	s.store.Lock()
	defer s.store.Unlock()

	acct := s.store.FindAccount(accountID)
	if acct == nil {
		return errNotFound("account", accountID)
	}
	cred := s.store.FindCredential(credentialID)
	if cred == nil {
		return errNotFound("credential", credentialID)
	}

	if cred.AccountID != "" && cred.AccountID != accountID {
		if prev := s.store.FindAccount(cred.AccountID); prev != nil {
			prev.CredentialIDs = removeStr(prev.CredentialIDs, credentialID)
		}
	}
	cred.AccountID = accountID
	if !containsStr(acct.CredentialIDs, credentialID) {
		acct.CredentialIDs = append(acct.CredentialIDs, credentialID)
	}
	now := s.nowMs()
	cred.UpdatedAtMs = now
	acct.UpdatedAtMs = now

	if err := s.store.Save(); err != nil {
		return errIO("write", err)
	}
	return nil
}

// RemoveCredentialFromAccount severs the bi-directional link without
// deleting the credential.
func (s *Service) RemoveCredentialFromAccount(accountID, credentialID string) *Error {
	s.store.Lock()
	defer s.store.Unlock()

	acct := s.store.FindAccount(accountID)
	if acct == nil {
		return errNotFound("account", accountID)
	}
	acct.CredentialIDs = removeStr(acct.CredentialIDs, credentialID)
	acct.UpdatedAtMs = s.nowMs()

	if cred := s.store.FindCredential(credentialID); cred != nil && cred.AccountID == accountID {
		cred.AccountID = ""
		cred.UpdatedAtMs = s.nowMs()
	}

	if err := s.store.Save(); err != nil {
		return errIO("write", err)
	}
	return nil
}

// GetAgentProfile returns an agent's profile, creating an empty one in
// memory (but not persisting it) if none exists yet.
func (s *Service) GetAgentProfile(agentID string) store.AgentCredentialProfile {
	s.store.RLock()
	defer s.store.RUnlock()
	if p := s.store.FindProfile(agentID); p != nil {
		return *p
	}
	return store.AgentCredentialProfile{AgentID: agentID}
}

// BindAgentToAccount grants agentID access to every credential on
// accountID, subject to restrictions.
func (s *Service) BindAgentToAccount(agentID, accountID string, restrictions *store.AccountBindingRestrictions) *Error {
	s.store.Lock()

	if s.store.FindAccount(accountID) == nil {
		s.store.Unlock()
		return errNotFound("account", accountID)
	}

	now := s.nowMs()
	profile := s.ensureProfileLocked(agentID, now)
	matched := false
	for i := range profile.AccountBindings {
		if profile.AccountBindings[i].AccountID == accountID {
			profile.AccountBindings[i].Restrictions = restrictions
			matched = true
			break
		}
	}
	if !matched {
		profile.AccountBindings = append(profile.AccountBindings, store.AccountBinding{
			AccountID: accountID, GrantedAtMs: now, GrantedBy: SystemAgentID, Restrictions: restrictions,
		})
	}
	profile.UpdatedAtMs = now

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventAgentProfileUpdated(agentID))
	return nil
}

// UnbindAgentFromAccount removes an agent's binding to an account.
func (s *Service) UnbindAgentFromAccount(agentID, accountID string) *Error {
	s.store.Lock()

	profile := s.store.FindProfile(agentID)
	if profile == nil {
		s.store.Unlock()
		return nil
	}
	kept := profile.AccountBindings[:0]
	for _, b := range profile.AccountBindings {
		if b.AccountID != accountID {
			kept = append(kept, b)
		}
	}
	profile.AccountBindings = kept
	profile.UpdatedAtMs = s.nowMs()

	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventAgentProfileUpdated(agentID))
	return nil
}

// ResolveAgentCredentialIds returns the union of direct grants and every
// credential reachable via account bindings (respecting restrictions).
func (s *Service) ResolveAgentCredentialIds(agentID string) []string {
	s.store.RLock()
	defer s.store.RUnlock()
	visible := s.visibleCredentialIDsLocked(agentID)
	out := make([]string, 0, len(visible))
	for id := range visible {
		out = append(out, id)
	}
	return out
}

// ensureProfileLocked returns a pointer to agentID's profile, creating and
// appending one if it does not exist. Caller must hold the write lock.
func (s *Service) ensureProfileLocked(agentID string, now int64) *store.AgentCredentialProfile {
	if p := s.store.FindProfile(agentID); p != nil {
		return p
	}
	s.store.File.AgentProfiles = append(s.store.File.AgentProfiles, store.AgentCredentialProfile{
		AgentID: agentID, CreatedAtMs: now, UpdatedAtMs: now,
	})
	return s.store.FindProfile(agentID)
}
