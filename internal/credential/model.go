package credential

import (
	"github.com/goccy/go-json"
)

// RecordType discriminates wallet credential records as the agent stores
// them. Unknown values are passed through untouched by the normalizer.
type RecordType string

const (
	RecordTypeW3C   RecordType = "W3cCredentialRecord"
	RecordTypeMdoc  RecordType = "MdocRecord"
	RecordTypeSDJWT RecordType = "SdJwtVcRecord"

	// Verifiable credentials handed over in compact form before the agent
	// has stored them as a typed record.
	RecordTypeJWTVC    RecordType = "W3cJwtVerifiableCredential"
	RecordTypeJSONLDVC RecordType = "W3cJsonLdVerifiableCredential"
)

// StoredCredential is a wallet credential record in the agent's shape. The
// Type field selects which payload field carries the credential material:
// Credential for W3C records (a compact JWT string or a JSON-LD object),
// Base64URL for mdocs, CompactSDJWT for SD-JWT VCs.
type StoredCredential struct {
	Type         RecordType      `json:"type"`
	Credential   json.RawMessage `json:"credential,omitempty"`
	Base64URL    string          `json:"base64Url,omitempty"`
	CompactSDJWT string          `json:"compactSdJwtVc,omitempty"`

	// Raw preserves fields this service does not model.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ClaimFormat names the wire format a normalized credential was issued in.
type ClaimFormat string

const (
	ClaimFormatJWTVC   ClaimFormat = "jwt_vc"
	ClaimFormatLDPVC   ClaimFormat = "ldp_vc"
	ClaimFormatMsoMdoc ClaimFormat = "mso_mdoc"
	ClaimFormatSDJWT   ClaimFormat = "vc+sd-jwt"
	ClaimFormatUnknown ClaimFormat = "unknown"
)

// NormalizedCredential is the format-independent projection returned to API
// clients. Exactly one of the payload fields is populated per format:
// Credential for W3C formats, Namespaces for mdocs, Claims for SD-JWTs,
// Raw for unrecognized records.
type NormalizedCredential struct {
	ClaimFormat ClaimFormat               `json:"claimFormat"`
	Credential  map[string]any            `json:"credential,omitempty"`
	Namespaces  map[string]map[string]any `json:"namespaces,omitempty"`
	Claims      map[string]any            `json:"claims,omitempty"`
	Raw         json.RawMessage           `json:"raw,omitempty"`
}
