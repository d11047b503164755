package ledger

import (
	"errors"
	"fmt"

	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
)

// Pallet and call indexes of the runtime calls the agent produces.
const (
	palletAttestation = 62
	palletDid         = 64

	callAttestationAdd           = 0
	callDidCreate                = 0
	callDidAddServiceEndpoint    = 8
	callDidRemoveServiceEndpoint = 9
	callDidSubmitDidCall         = 12
)

var ErrUnknownCall = errors.New("unknown call")

// CreateClaimCall records an attestation of claimHash under ctypeHash.
func CreateClaimCall(claimHash, ctypeHash [32]byte) []byte {
	e := scaleEncoder{buf: []byte{palletAttestation, callAttestationAdd}}
	e.raw(claimHash[:])
	e.raw(ctypeHash[:])
	e.bool(false)
	return e.buf
}

// AddServiceEndpointCall adds a service endpoint with a single type and url.
func AddServiceEndpointCall(id, serviceType, url string) []byte {
	e := scaleEncoder{buf: []byte{palletDid, callDidAddServiceEndpoint}}
	encodeEndpoint(&e, did.ServiceEndpoint{ID: id, Types: []string{serviceType}, URLs: []string{url}})
	return e.buf
}

func RemoveServiceEndpointCall(id string) []byte {
	e := scaleEncoder{buf: []byte{palletDid, callDidRemoveServiceEndpoint}}
	e.bytes([]byte(id))
	return e.buf
}

func encodeEndpoint(e *scaleEncoder, ep did.ServiceEndpoint) {
	e.bytes([]byte(ep.ID))
	e.strings(ep.Types)
	e.strings(ep.URLs)
}

// CreateDidDetails is the payload a new DID signs to register itself.
type CreateDidDetails struct {
	Did              signer.AccountID
	Submitter        signer.AccountID
	KeyAgreementKeys [][did.EncryptionKeySize]byte
	AttestationKey   *did.PublicKey
	DelegationKey    *did.PublicKey
	Services         []did.ServiceEndpoint
}

func (c CreateDidDetails) Encode() []byte {
	var e scaleEncoder
	e.raw(c.Did[:])
	e.raw(c.Submitter[:])
	e.compact(uint64(len(c.KeyAgreementKeys)))
	for _, k := range c.KeyAgreementKeys {
		e.u8(0)
		e.raw(k[:])
	}
	encodeOptionalVerificationKey(&e, c.AttestationKey)
	encodeOptionalVerificationKey(&e, c.DelegationKey)
	e.compact(uint64(len(c.Services)))
	for _, ep := range c.Services {
		encodeEndpoint(&e, ep)
	}
	return e.buf
}

func encodeOptionalVerificationKey(e *scaleEncoder, k *did.PublicKey) {
	if k == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.u8(byte(k.Type))
	e.raw(k.Bytes)
}

// CreateDidCall wraps signed creation details into the create call.
func CreateDidCall(details CreateDidDetails, sig signer.TaggedSignature) ([]byte, error) {
	encodedSig, err := signer.EncodeDidSignature(sig)
	if err != nil {
		return nil, err
	}
	e := scaleEncoder{buf: []byte{palletDid, callDidCreate}}
	e.raw(details.Encode())
	e.raw(encodedSig)
	return e.buf, nil
}

// SignCreateDid signs the creation details with the DID's own key.
func SignCreateDid(owner signer.Signer, details CreateDidDetails) ([]byte, error) {
	sig, err := owner.Sign(details.Encode())
	if err != nil {
		return nil, fmt.Errorf("sign did creation: %w", err)
	}
	return CreateDidCall(details, sig)
}

type CallKind uint8

const (
	CallUnknown CallKind = iota
	CallCreateDid
	CallSubmitDidCall
	CallAddAttestation
	CallAddServiceEndpoint
	CallRemoveServiceEndpoint
)

// DecodedCall is the parsed form of a call produced by this package.
type DecodedCall struct {
	Kind CallKind

	// CallCreateDid
	Create *CreateDidDetails
	// CallCreateDid and CallSubmitDidCall
	Signature signer.TaggedSignature
	// CallSubmitDidCall
	Operation *DidAuthorizedCallOperation
	Inner     *DecodedCall

	// CallAddAttestation
	ClaimHash [32]byte
	CtypeHash [32]byte

	// CallAddServiceEndpoint and CallRemoveServiceEndpoint
	Endpoint did.ServiceEndpoint
}

// ParseCall decodes a call built by this package. Calls from other pallets
// yield ErrUnknownCall.
func ParseCall(b []byte) (*DecodedCall, error) {
	d := &scaleDecoder{buf: b}
	call, err := parseCall(d)
	if err != nil {
		return nil, err
	}
	if d.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrScaleDecode, d.remaining())
	}
	return call, nil
}

func parseCall(d *scaleDecoder) (*DecodedCall, error) {
	head, err := d.take(2)
	if err != nil {
		return nil, err
	}
	switch {
	case head[0] == palletAttestation && head[1] == callAttestationAdd:
		claim, err := d.array32()
		if err != nil {
			return nil, err
		}
		ctype, err := d.array32()
		if err != nil {
			return nil, err
		}
		if _, err := d.u8(); err != nil {
			return nil, err
		}
		return &DecodedCall{Kind: CallAddAttestation, ClaimHash: claim, CtypeHash: ctype}, nil
	case head[0] == palletDid && head[1] == callDidAddServiceEndpoint:
		ep, err := parseEndpoint(d)
		if err != nil {
			return nil, err
		}
		return &DecodedCall{Kind: CallAddServiceEndpoint, Endpoint: ep}, nil
	case head[0] == palletDid && head[1] == callDidRemoveServiceEndpoint:
		id, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return &DecodedCall{Kind: CallRemoveServiceEndpoint, Endpoint: did.ServiceEndpoint{ID: string(id)}}, nil
	case head[0] == palletDid && head[1] == callDidCreate:
		details, err := parseCreateDetails(d)
		if err != nil {
			return nil, err
		}
		sig, err := parseDidSignature(d)
		if err != nil {
			return nil, err
		}
		return &DecodedCall{Kind: CallCreateDid, Create: details, Signature: sig}, nil
	case head[0] == palletDid && head[1] == callDidSubmitDidCall:
		op, inner, err := parseOperation(d)
		if err != nil {
			return nil, err
		}
		sig, err := parseDidSignature(d)
		if err != nil {
			return nil, err
		}
		return &DecodedCall{Kind: CallSubmitDidCall, Operation: op, Inner: inner, Signature: sig}, nil
	default:
		return nil, fmt.Errorf("%w: pallet %d call %d", ErrUnknownCall, head[0], head[1])
	}
}

func parseEndpoint(d *scaleDecoder) (did.ServiceEndpoint, error) {
	id, err := d.bytes()
	if err != nil {
		return did.ServiceEndpoint{}, err
	}
	types, err := d.strings()
	if err != nil {
		return did.ServiceEndpoint{}, err
	}
	urls, err := d.strings()
	if err != nil {
		return did.ServiceEndpoint{}, err
	}
	return did.ServiceEndpoint{ID: string(id), Types: types, URLs: urls}, nil
}

func parseCreateDetails(d *scaleDecoder) (*CreateDidDetails, error) {
	owner, err := d.array32()
	if err != nil {
		return nil, err
	}
	submitter, err := d.array32()
	if err != nil {
		return nil, err
	}
	out := &CreateDidDetails{Did: owner, Submitter: submitter}
	n, err := d.compact()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := d.u8(); err != nil {
			return nil, err
		}
		k, err := d.array32()
		if err != nil {
			return nil, err
		}
		out.KeyAgreementKeys = append(out.KeyAgreementKeys, k)
	}
	if out.AttestationKey, err = parseOptionalVerificationKey(d); err != nil {
		return nil, err
	}
	if out.DelegationKey, err = parseOptionalVerificationKey(d); err != nil {
		return nil, err
	}
	n, err = d.compact()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		ep, err := parseEndpoint(d)
		if err != nil {
			return nil, err
		}
		out.Services = append(out.Services, ep)
	}
	return out, nil
}

func parseOptionalVerificationKey(d *scaleDecoder) (*did.PublicKey, error) {
	present, err := d.u8()
	if err != nil || present == 0 {
		return nil, err
	}
	variant, err := d.u8()
	if err != nil {
		return nil, err
	}
	size := 32
	if did.KeyType(variant) == did.KeyEcdsa {
		size = 33
	} else if variant > byte(did.KeyEcdsa) {
		return nil, fmt.Errorf("%w: verification key variant %d", ErrScaleDecode, variant)
	}
	b, err := d.take(size)
	if err != nil {
		return nil, err
	}
	return &did.PublicKey{Kind: did.VerificationKey, Type: did.KeyType(variant), Bytes: append([]byte(nil), b...)}, nil
}

func parseDidSignature(d *scaleDecoder) (signer.TaggedSignature, error) {
	variant, err := d.u8()
	if err != nil {
		return signer.TaggedSignature{}, err
	}
	var alg signer.Algorithm
	switch variant {
	case 0:
		alg = signer.Ed25519
	case 1:
		alg = signer.Sr25519
	case 2:
		alg = signer.Ecdsa
	default:
		return signer.TaggedSignature{}, fmt.Errorf("%w: signature variant %d", ErrScaleDecode, variant)
	}
	size, _ := alg.SignatureSize()
	b, err := d.take(size)
	if err != nil {
		return signer.TaggedSignature{}, err
	}
	return signer.TaggedSignature{Algorithm: alg, Bytes: append([]byte(nil), b...)}, nil
}

func parseOperation(d *scaleDecoder) (*DidAuthorizedCallOperation, *DecodedCall, error) {
	owner, err := d.array32()
	if err != nil {
		return nil, nil, err
	}
	counter, err := d.u64()
	if err != nil {
		return nil, nil, err
	}
	start := d.off
	inner, err := parseCall(d)
	if err != nil {
		return nil, nil, err
	}
	if inner.Kind == CallSubmitDidCall || inner.Kind == CallCreateDid {
		return nil, nil, fmt.Errorf("%w: nested did call", ErrUnknownCall)
	}
	call := append([]byte(nil), d.buf[start:d.off]...)
	block, err := d.u64()
	if err != nil {
		return nil, nil, err
	}
	submitter, err := d.array32()
	if err != nil {
		return nil, nil, err
	}
	return &DidAuthorizedCallOperation{
		Did:         owner,
		TxCounter:   counter,
		Call:        call,
		BlockNumber: block,
		Submitter:   submitter,
	}, inner, nil
}
