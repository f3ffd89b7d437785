package vault

import "github.com/Mindburn-Labs/credvault/pkg/vaultevents"

func eventCredentialCreated(id, name string) (string, interface{}) {
	return vaultevents.CredentialCreated, map[string]string{"id": id, "name": name}
}
func eventCredentialUpdated(id string) (string, interface{}) {
	return vaultevents.CredentialUpdated, map[string]string{"id": id}
}
func eventCredentialDeleted(id string) (string, interface{}) {
	return vaultevents.CredentialDeleted, map[string]string{"id": id}
}
func eventCredentialRotated(id string) (string, interface{}) {
	return vaultevents.CredentialRotated, map[string]string{"id": id}
}
func eventCredentialGrantAdded(id, agentID string) (string, interface{}) {
	return vaultevents.CredentialGrantAdded, map[string]string{"id": id, "agentId": agentID}
}
func eventCredentialGrantRevoked(id, agentID string) (string, interface{}) {
	return vaultevents.CredentialGrantRevoked, map[string]string{"id": id, "agentId": agentID}
}
func eventLeaseCreated(leaseID, id, agentID string) (string, interface{}) {
	return vaultevents.CredentialLeaseCreated, map[string]string{"leaseId": leaseID, "credentialId": id, "agentId": agentID}
}
func eventLeaseRevoked(leaseID string) (string, interface{}) {
	return vaultevents.CredentialLeaseRevoked, map[string]string{"leaseId": leaseID}
}
func eventAccountCreated(id string) (string, interface{}) {
	return vaultevents.AccountCreated, map[string]string{"id": id}
}
func eventAccountUpdated(id string) (string, interface{}) {
	return vaultevents.AccountUpdated, map[string]string{"id": id}
}
func eventAccountDeleted(id string) (string, interface{}) {
	return vaultevents.AccountDeleted, map[string]string{"id": id}
}
func eventAgentProfileUpdated(agentID string) (string, interface{}) {
	return vaultevents.AgentProfileUpdated, map[string]string{"agentId": agentID}
}
