// Package models holds the JSON wire types shared by the HTTP surface, the
// session service and the outbound credential clients.
package models

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	MessageTypeSubmitTerms        = "submit-terms"
	MessageTypeRequestAttestation = "request-attestation"
)

var ErrHexEncoding = errors.New("invalid 0x hex value")

// HexBytes marshals as a lowercase 0x-prefixed hex string.
type HexBytes []byte

func (h HexBytes) String() string {
	return "0x" + hex.EncodeToString(h)
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrHexEncoding, err)
	}
	decoded, err := DecodeHex(raw)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// DecodeHex accepts hex text with or without the 0x prefix.
func DecodeHex(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	out, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHexEncoding, err)
	}
	return out, nil
}

// ByteList marshals as a JSON array of numbers, the shape wallet extensions
// expect for a raw challenge.
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return json.Marshal(out)
}

func (b *ByteList) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type ChallengeData struct {
	AppName          string   `json:"dAppName"`
	EncryptionKeyURI string   `json:"dAppEncryptionKeyUri"`
	Challenge        ByteList `json:"challenge"`
}

type ChallengeResponse struct {
	EncryptionKeyURI   string   `json:"encryptionKeyUri"`
	EncryptedChallenge HexBytes `json:"encryptedChallenge"`
	Nonce              HexBytes `json:"nonce"`
}

type Claim struct {
	CTypeHash string          `json:"cTypeHash"`
	Contents  json.RawMessage `json:"contents"`
	Owner     string          `json:"owner"`
}

type Credential struct {
	Claim         Claim             `json:"claim"`
	ClaimNonceMap map[string]string `json:"claimNonceMap"`
	ClaimHashes   []string          `json:"claimHashes"`
	DelegationID  *string           `json:"delegationId"`
	Legitimations []Credential      `json:"legitimations"`
	RootHash      string            `json:"rootHash"`
}

type MessageBody struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type Message struct {
	Body       MessageBody `json:"body"`
	CreatedAt  uint64      `json:"createdAt"`
	Sender     string      `json:"sender"`
	Receiver   string      `json:"receiver"`
	MessageID  string      `json:"messageId"`
	InReplyTo  *string     `json:"inReplyTo"`
	References []string    `json:"references"`
}

type EncryptedMessage struct {
	Ciphertext     HexBytes `json:"ciphertext"`
	Nonce          HexBytes `json:"nonce"`
	ReceiverKeyURI string   `json:"receiverKeyUri"`
	SenderKeyURI   string   `json:"senderKeyUri"`
}

type SubmitTermsContent struct {
	Claim         Claim    `json:"claim"`
	Legitimations []string `json:"legitimations"`
	CTypes        []string `json:"cTypes"`
}

type RequestAttestationContent struct {
	Credential Credential      `json:"credential"`
	Quote      json.RawMessage `json:"quote,omitempty"`
}

// AttestationRecord is one entry of the attester's attestation listing.
type AttestationRecord struct {
	ID         string          `json:"id"`
	Approved   bool            `json:"approved"`
	Revoked    bool            `json:"revoked"`
	CTypeHash  string          `json:"ctype_hash"`
	Credential json.RawMessage `json:"credential"`
	Claimer    string          `json:"claimer"`
}

// UseCaseMessage instructs the device to join a use case.
type UseCaseMessage struct {
	UseCase               string `json:"useCase"`
	UseCaseURL            string `json:"useCaseUrl"`
	UseCaseDidURL         string `json:"useCaseDidUrl"`
	UpdateServiceEndpoint bool   `json:"updateServiceEndpoint"`
	NotifyUseCase         bool   `json:"notifyUseCase"`
}

// UseCaseRegistration is posted to a use case service to announce a device.
type UseCaseRegistration struct {
	DidURL       string     `json:"didUrl"`
	Presentation Credential `json:"presentation"`
}

// UseCase is the participation currently recorded on the DID.
type UseCase struct {
	UseCase    string `json:"useCase"`
	UseCaseURL string `json:"useCaseUrl"`
}

type DidResponse struct {
	Did        string `json:"did"`
	Web3Name   string `json:"web3Name,omitempty"`
	Registered bool   `json:"registered"`
}

type PaymentResponse struct {
	Address string `json:"address"`
}

type TxResponse struct {
	Tx string `json:"tx"`
}

// OriginUpdate carries the new origin of the well-known DID configuration.
type OriginUpdate struct {
	URL string `json:"url"`
}

// NormalizeMessage trims identifiers and fills defaults for optional fields.
func NormalizeMessage(msg Message) Message {
	msg.Sender = strings.TrimSpace(msg.Sender)
	msg.Receiver = strings.TrimSpace(msg.Receiver)
	msg.MessageID = strings.TrimSpace(msg.MessageID)
	msg.Body.Type = strings.TrimSpace(msg.Body.Type)
	if msg.InReplyTo != nil && strings.TrimSpace(*msg.InReplyTo) == "" {
		msg.InReplyTo = nil
	}
	return msg
}
