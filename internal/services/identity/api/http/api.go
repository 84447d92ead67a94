// Package http exposes the identity service REST API.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/challenge"
	"github.com/tekiplanet/vortexid/internal/services/identity/holder"
	"github.com/tekiplanet/vortexid/internal/services/identity/token"
	"github.com/tekiplanet/vortexid/internal/services/identity/verification"
)

// RoleHeader carries the caller's capability. Authority-only transitions are
// enforced by the workflow itself; the header only declares who is calling.
const RoleHeader = "X-Vortex-Role"

// API wires domain services into HTTP handlers.
type API struct {
	holder     *holder.Service
	workflow   *verification.Workflow
	tokens     *token.Service
	challenges *challenge.Service
	auditor    *audit.Emitter
}

// NewAPI creates the REST handler set.
func NewAPI(holderSvc *holder.Service, workflow *verification.Workflow, tokens *token.Service, challenges *challenge.Service, auditor *audit.Emitter) *API {
	return &API{
		holder:     holderSvc,
		workflow:   workflow,
		tokens:     tokens,
		challenges: challenges,
		auditor:    auditor,
	}
}

// Register mounts every route on the router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/identities", a.issueIdentity).Methods("POST", "OPTIONS")
	r.HandleFunc("/identities/{did}", a.getIdentity).Methods("GET", "OPTIONS")
	r.HandleFunc("/identities/{did}/resolve", a.resolveDID).Methods("GET", "OPTIONS")
	r.HandleFunc("/identities/{did}/audit", a.auditTrail).Methods("GET", "OPTIONS")
	r.HandleFunc("/identities/{did}/keys", a.rotateKey).Methods("POST", "OPTIONS")
	r.HandleFunc("/identities/{did}/attributes", a.addAttribute).Methods("POST", "OPTIONS")
	r.HandleFunc("/attributes/{id}", a.updateAttribute).Methods("PUT", "OPTIONS")
	r.HandleFunc("/attributes/{id}", a.deleteAttribute).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/verifications/request", a.requestVerification).Methods("POST", "OPTIONS")
	r.HandleFunc("/verifications/complete", a.completeVerification).Methods("POST", "OPTIONS")
	r.HandleFunc("/verifications/reject", a.rejectVerification).Methods("POST", "OPTIONS")
	r.HandleFunc("/verifications/revoke", a.revokeVerification).Methods("POST", "OPTIONS")
	r.HandleFunc("/tokens", a.mintToken).Methods("POST", "OPTIONS")
	r.HandleFunc("/tokens/verify", a.verifyToken).Methods("POST", "OPTIONS")
	r.HandleFunc("/consents/revoke", a.revokeConsent).Methods("POST", "OPTIONS")
	r.HandleFunc("/challenges", a.createChallenge).Methods("POST", "OPTIONS")
	r.HandleFunc("/challenges/verify", a.verifyChallenge).Methods("POST", "OPTIONS")
}

func (a *API) issueIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey  string            `json:"public_key"`
		Attributes map[string]string `json:"attributes"`
	}
	if !decode(w, r, &req) {
		return
	}
	issued, err := a.holder.Issue(r.Context(), req.PublicKey, req.Attributes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"identity_id": issued.IdentityID,
		"did":         issued.DID,
	})
}

func (a *API) getIdentity(w http.ResponseWriter, r *http.Request) {
	record, err := a.holder.GetByDID(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) resolveDID(w http.ResponseWriter, r *http.Request) {
	profile, err := a.holder.ResolveDID(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) auditTrail(w http.ResponseWriter, r *http.Request) {
	record, err := a.holder.GetByDID(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := a.auditor.List(r.Context(), record.Identity.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) rotateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"public_key"`
	}
	if !decode(w, r, &req) {
		return
	}
	record, err := a.holder.GetByDID(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.holder.RotateKey(r.Context(), record.Identity.ID, req.PublicKey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rotated": true})
}

func (a *API) addAttribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	record, err := a.holder.GetByDID(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	attribute, err := a.holder.AddAttribute(r.Context(), record.Identity.ID, req.Name, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attribute)
}

func (a *API) updateAttribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	attribute, err := a.holder.UpdateAttribute(r.Context(), mux.Vars(r)["id"], req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attribute)
}

func (a *API) deleteAttribute(w http.ResponseWriter, r *http.Request) {
	if err := a.holder.DeleteAttribute(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type verificationRequest struct {
	IdentityID string `json:"identity_id"`
	Attribute  string `json:"attribute"`
}

func (a *API) requestVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.workflow.RequestChallenge(r.Context(), req.IdentityID, req.Attribute); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "pending",
		"message": "Verification challenge sent for " + req.Attribute,
	})
}

func (a *API) completeVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.workflow.Complete(r.Context(), callerRole(r), req.IdentityID, req.Attribute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) rejectVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.workflow.Reject(r.Context(), callerRole(r), req.IdentityID, req.Attribute); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (a *API) revokeVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.workflow.Revoke(r.Context(), callerRole(r), req.IdentityID, req.Attribute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) mintToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string   `json:"identity_id"`
		PrivateKey string   `json:"private_key"`
		Attributes []string `json:"attributes"`
	}
	if !decode(w, r, &req) {
		return
	}
	minted, err := a.tokens.Mint(r.Context(), req.IdentityID, req.PrivateKey, req.Attributes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"token":      minted.Token,
		"expires_at": minted.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (a *API) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := a.tokens.Verify(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	// Verification failures are normal results, not HTTP errors.
	writeJSON(w, http.StatusOK, result)
}

func (a *API) revokeConsent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		VerifierID string `json:"verifier_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := a.tokens.RevokeConsent(r.Context(), req.IdentityID, req.VerifierID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (a *API) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DID string `json:"did"`
	}
	if !decode(w, r, &req) {
		return
	}
	nonce, err := a.challenges.Generate(r.Context(), req.DID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"challenge": nonce})
}

func (a *API) verifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DID       string `json:"did"`
		Challenge string `json:"challenge"`
		Signature string `json:"signature"`
	}
	if !decode(w, r, &req) {
		return
	}
	valid, err := a.challenges.Verify(r.Context(), req.DID, req.Challenge, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func callerRole(r *http.Request) verification.Role {
	if strings.EqualFold(r.Header.Get(RoleHeader), string(verification.RoleAuthority)) {
		return verification.RoleAuthority
	}
	return verification.RoleHolder
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeValidation, "request body is not valid JSON", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	message := err.Error()
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		// Internal details stay in the logs.
		log.Printf("identity api error: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  string(code),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
