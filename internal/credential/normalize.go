package credential

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sirupsen/logrus"
)

// SDJWTDiscloser recovers the disclosed claim set from a compact SD-JWT.
type SDJWTDiscloser interface {
	DiscloseClaims(compact string) (map[string]any, error)
}

// Normalizer projects wallet credential records into a single
// format-independent shape. Normalize is total: malformed payloads degrade
// to an empty or raw projection instead of failing, so one bad credential
// never sinks a response carrying several.
type Normalizer struct {
	discloser SDJWTDiscloser
}

func NewNormalizer(discloser SDJWTDiscloser) *Normalizer {
	return &Normalizer{discloser: discloser}
}

func (n *Normalizer) Normalize(record StoredCredential) NormalizedCredential {
	switch record.Type {
	case RecordTypeW3C, RecordTypeJWTVC, RecordTypeJSONLDVC:
		return normalizeW3C(record.Credential)
	case RecordTypeMdoc:
		return normalizeMdoc(record.Base64URL)
	case RecordTypeSDJWT:
		return n.normalizeSDJWT(record.CompactSDJWT)
	default:
		raw := record.Raw
		if len(raw) == 0 {
			raw, _ = json.Marshal(record)
		}
		return NormalizedCredential{ClaimFormat: ClaimFormatUnknown, Raw: raw}
	}
}

// NormalizeAll maps Normalize over a slice, preserving order.
func (n *Normalizer) NormalizeAll(records []StoredCredential) []NormalizedCredential {
	normalized := make([]NormalizedCredential, 0, len(records))
	for _, record := range records {
		normalized = append(normalized, n.Normalize(record))
	}
	return normalized
}

// normalizeW3C handles both encodings of a W3C record: a JSON string holding
// a compact JWT, or a JSON-LD credential object.
func normalizeW3C(payload json.RawMessage) NormalizedCredential {
	if len(payload) == 0 {
		return NormalizedCredential{ClaimFormat: ClaimFormatLDPVC, Credential: map[string]any{}}
	}

	var compact string
	if err := json.Unmarshal(payload, &compact); err == nil {
		return normalizeJWTVC(compact)
	}

	var credential map[string]any
	if err := json.Unmarshal(payload, &credential); err != nil {
		logrus.WithError(err).Warn("w3c credential record is neither a jwt string nor an object")
		return NormalizedCredential{ClaimFormat: ClaimFormatLDPVC, Raw: payload}
	}
	return NormalizedCredential{ClaimFormat: ClaimFormatLDPVC, Credential: credential}
}

func normalizeJWTVC(compact string) NormalizedCredential {
	token, err := jwt.Parse([]byte(compact), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		logrus.WithError(err).Warn("could not parse jwt credential, returning it raw")
		raw, _ := json.Marshal(compact)
		return NormalizedCredential{ClaimFormat: ClaimFormatJWTVC, Raw: raw}
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		raw, _ := json.Marshal(compact)
		return NormalizedCredential{ClaimFormat: ClaimFormatJWTVC, Raw: raw}
	}
	return NormalizedCredential{ClaimFormat: ClaimFormatJWTVC, Credential: claims}
}

// mdoc issuer-signed payloads, trimmed to the fields needed for claim
// extraction. Items are tag-24 wrapped byte strings.
type mdocDocument struct {
	IssuerSigned mdocIssuerSigned `cbor:"issuerSigned"`
}

type mdocIssuerSigned struct {
	NameSpaces map[string][]cbor.RawMessage `cbor:"nameSpaces"`
}

type mdocSignedItem struct {
	ElementIdentifier string `cbor:"elementIdentifier"`
	ElementValue      any    `cbor:"elementValue"`
}

func normalizeMdoc(base64URL string) NormalizedCredential {
	normalized := NormalizedCredential{
		ClaimFormat: ClaimFormatMsoMdoc,
		Namespaces:  map[string]map[string]any{},
	}

	encoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(base64URL, "="))
	if err != nil {
		logrus.WithError(err).Warn("mdoc record is not base64url, returning empty namespaces")
		return normalized
	}

	var doc mdocDocument
	if err = cbor.Unmarshal(encoded, &doc); err != nil {
		logrus.WithError(err).Warn("could not decode mdoc payload, returning empty namespaces")
		return normalized
	}

	for namespace, items := range doc.IssuerSigned.NameSpaces {
		elements := map[string]any{}
		for _, rawItem := range items {
			item, err := decodeSignedItem(rawItem)
			if err != nil {
				logrus.WithError(err).WithField("namespace", namespace).Warn("skipping undecodable mdoc element")
				continue
			}
			elements[item.ElementIdentifier] = item.ElementValue
		}
		normalized.Namespaces[namespace] = elements
	}
	return normalized
}

func decodeSignedItem(raw cbor.RawMessage) (*mdocSignedItem, error) {
	var tagged cbor.Tag
	if err := cbor.Unmarshal(raw, &tagged); err != nil {
		return nil, err
	}
	encoded, ok := tagged.Content.([]byte)
	if !ok {
		// Not tag-24 wrapped, try the item directly.
		encoded = raw
	}
	var item mdocSignedItem
	if err := cbor.Unmarshal(encoded, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (n *Normalizer) normalizeSDJWT(compact string) NormalizedCredential {
	if compact == "" {
		return NormalizedCredential{ClaimFormat: ClaimFormatSDJWT, Claims: map[string]any{}}
	}

	claims, err := n.discloser.DiscloseClaims(compact)
	if err != nil {
		logrus.WithError(err).Warn("could not disclose sd-jwt claims, returning it raw")
		raw, _ := json.Marshal(compact)
		return NormalizedCredential{ClaimFormat: ClaimFormatSDJWT, Raw: raw}
	}
	return NormalizedCredential{ClaimFormat: ClaimFormatSDJWT, Claims: claims}
}
