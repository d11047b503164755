package api

import (
	"errors"
	"net/http"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/claimstore"
	"olibox/agent/pkg/models"
)

var (
	ErrSessionDisabled   = errors.New("wallet sessions are not configured")
	ErrWellKnownDisabled = errors.New("well-known did configuration is not configured")
)

// handleDoctor answers 503 while any readiness check fails.
func (s *Server) handleDoctor(w http.ResponseWriter, r *http.Request) {
	report := s.app.Doctor(r.Context())
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleGetDid(w http.ResponseWriter, r *http.Request) {
	out, err := s.app.Did(r.Context())
	if err != nil {
		s.writeError(w, "get_did", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterDid(w http.ResponseWriter, r *http.Request) {
	hash, err := s.app.RegisterDid(r.Context())
	if err != nil {
		s.writeError(w, "register_did", err)
		return
	}
	writeJSON(w, http.StatusOK, models.TxResponse{Tx: hash.String()})
}

func (s *Server) handleResetDid(w http.ResponseWriter, r *http.Request) {
	newDid, err := s.app.ResetDid(r.Context())
	if err != nil {
		s.writeError(w, "reset_did", err)
		return
	}
	writeJSON(w, http.StatusOK, models.DidResponse{Did: newDid})
}

func (s *Server) handlePaymentAddress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.PaymentResponse{Address: s.app.PaymentAddress()})
}

// handleSubmitPayment takes the hex call as a bare JSON string.
func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var call string
	if err := decodeJSON(r, &call); err != nil {
		s.writeError(w, "submit_payment", err)
		return
	}
	hash, err := s.app.SubmitPayment(r.Context(), call)
	if err != nil {
		s.writeError(w, "submit_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, models.TxResponse{Tx: hash.String()})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	mode, err := claimstore.ParseMode(r.PathValue("mode"))
	if err != nil {
		s.writeError(w, "get_claim", err)
		return
	}
	credential, err := s.app.Claim(mode)
	if err != nil {
		s.writeError(w, "get_claim", err)
		return
	}
	writeJSON(w, http.StatusOK, credential)
}

func (s *Server) handlePostClaim(w http.ResponseWriter, r *http.Request) {
	mode, err := claimstore.ParseMode(r.PathValue("mode"))
	if err != nil {
		s.writeError(w, "post_claim", err)
		return
	}
	var credential models.Credential
	if err := decodeJSON(r, &credential); err != nil {
		s.writeError(w, "post_claim", err)
		return
	}
	if err := s.app.PostClaim(r.Context(), mode, credential); err != nil {
		s.writeError(w, "post_claim", err)
		return
	}
	writeJSON(w, http.StatusOK, credential)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	raw, err := s.app.Credentials(r.Context())
	if err != nil {
		s.writeError(w, "list_credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleSubmitTerms(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		s.writeError(w, "submit_terms", sessionDisabled())
		return
	}
	var claim models.Claim
	if err := decodeJSON(r, &claim); err != nil {
		s.writeError(w, "submit_terms", err)
		return
	}
	msg, err := s.session.SubmitTerms(r.Context(), s.sessionID(w, r), claim)
	if err != nil {
		s.writeError(w, "submit_terms", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleRequestAttestation(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		s.writeError(w, "request_attestation", sessionDisabled())
		return
	}
	var msg models.EncryptedMessage
	if err := decodeJSON(r, &msg); err != nil {
		s.writeError(w, "request_attestation", err)
		return
	}
	hash, err := s.session.RequestAttestation(r.Context(), msg)
	if err != nil {
		s.writeError(w, "request_attestation", err)
		return
	}
	writeJSON(w, http.StatusOK, models.TxResponse{Tx: hash.String()})
}

func (s *Server) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		s.writeError(w, "issue_challenge", sessionDisabled())
		return
	}
	data, err := s.session.IssueChallenge(s.sessionID(w, r))
	if err != nil {
		s.writeError(w, "issue_challenge", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		s.writeError(w, "verify_challenge", sessionDisabled())
		return
	}
	var resp models.ChallengeResponse
	if err := decodeJSON(r, &resp); err != nil {
		s.writeError(w, "verify_challenge", err)
		return
	}
	if err := s.session.VerifyChallengeResponse(r.Context(), s.sessionID(w, r), resp); err != nil {
		s.writeError(w, "verify_challenge", err)
		return
	}
	writeJSON(w, http.StatusOK, "ok")
}

func (s *Server) handleCurrentUseCase(w http.ResponseWriter, r *http.Request) {
	out, err := s.useCase.Current(r.Context())
	if err != nil {
		s.writeError(w, "current_use_case", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleParticipate(w http.ResponseWriter, r *http.Request) {
	var msg models.UseCaseMessage
	if err := decodeJSON(r, &msg); err != nil {
		s.writeError(w, "participate_use_case", err)
		return
	}
	if err := s.useCase.Participate(r.Context(), msg); err != nil {
		s.writeError(w, "participate_use_case", err)
		return
	}
	writeJSON(w, http.StatusOK, msg.UseCaseDidURL)
}

func (s *Server) handleWellKnown(w http.ResponseWriter, _ *http.Request) {
	if s.wellKnown == nil {
		s.writeError(w, "well_known_config", apperr.New(apperr.CategoryIO, "%w: %w", ErrWellKnownDisabled, apperr.ErrNotFound))
		return
	}
	cfg, err := s.wellKnown.Current(s.now())
	if err != nil {
		s.writeError(w, "well_known_config", apperr.Credential(err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleWellKnownOrigin(w http.ResponseWriter, r *http.Request) {
	if s.wellKnown == nil {
		s.writeError(w, "well_known_origin", apperr.New(apperr.CategoryIO, "%w: %w", ErrWellKnownDisabled, apperr.ErrNotFound))
		return
	}
	var update models.OriginUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.writeError(w, "well_known_origin", err)
		return
	}
	if err := s.wellKnown.SetOrigin(update.URL); err != nil {
		s.writeError(w, "well_known_origin", apperr.Format(err))
		return
	}
	writeJSON(w, http.StatusOK, "ok")
}

func sessionDisabled() error {
	return apperr.New(apperr.CategoryChallenge, "%w: %w", ErrSessionDisabled, apperr.ErrNotFound)
}
