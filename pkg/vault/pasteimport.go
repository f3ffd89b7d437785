package vault

import "github.com/Mindburn-Labs/credvault/pkg/store"

// Detection is the result of the (externally owned) provider-detection
// heuristic that pkg/pasteimport's Detector interface produces.
type Detection struct {
	Provider        string
	ProviderDisplay string
	Email           string
	Secret          store.Secret
}

// CreateFromPasteResult bundles what createFromPaste returns.
type CreateFromPasteResult struct {
	Credential store.Credential
	Account    store.Account
	Detection  Detection
}

// CreateFromPaste attaches a freshly detected credential to an existing
// account (matched by provider + optional email), or creates one, then
// binds the SYSTEM agent to it. detection has already been produced by an
// external provider-detection heuristic; this function only handles
// account matching/creation and credential creation.
func (s *Service) CreateFromPaste(detection Detection, overrides CreateInput) (CreateFromPasteResult, *Error) {
	if detection.Provider == "" {
		return CreateFromPasteResult{}, errInvalidInput("paste did not match any known provider")
	}

	s.store.Lock()
	var acct *store.Account
	for i := range s.store.File.Accounts {
		a := &s.store.File.Accounts[i]
		if a.Provider != detection.Provider {
			continue
		}
		if detection.Email != "" && a.Email != "" && a.Email != detection.Email {
			continue
		}
		acct = a
		break
	}

	now := s.nowMs()
	created := false
	if acct == nil {
		newAcct := store.Account{
			ID:            s.newID(),
			Name:          detection.ProviderDisplay,
			Provider:      detection.Provider,
			Email:         detection.Email,
			CredentialIDs: []string{},
			CreatedAtMs:   now,
			UpdatedAtMs:   now,
		}
		s.store.File.Accounts = append(s.store.File.Accounts, newAcct)
		acct = s.store.FindAccount(newAcct.ID)
		created = true
	}
	accountID := acct.ID
	if created {
		if err := s.store.Save(); err != nil {
			s.store.Unlock()
			return CreateFromPasteResult{}, errIO("write", err)
		}
	}
	s.store.Unlock()

	in := overrides
	if in.Name == "" {
		in.Name = detection.ProviderDisplay
	}
	if in.Category == "" {
		in.Category = store.CategoryAIProvider
	}
	in.Provider = detection.Provider
	in.Secret = detection.Secret
	in.AccountID = accountID

	cred, err := s.Create(in)
	if err != nil {
		return CreateFromPasteResult{}, err
	}

	if bindErr := s.BindAgentToAccount(SystemAgentID, accountID, nil); bindErr != nil {
		return CreateFromPasteResult{}, bindErr
	}

	finalAcct, _ := s.GetAccount(accountID)
	if created {
		s.events.Publish(eventAccountCreated(accountID))
	}

	return CreateFromPasteResult{Credential: cred, Account: finalAcct, Detection: detection}, nil
}
