package credential

import (
	"encoding/base64"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJWTCredential(t *testing.T) {
	compact := buildTestJWT(t, map[string]any{
		"iss": "did:web:issuer.example",
		"vc": map[string]any{
			"type": []any{"VerifiableCredential", "UniversityDegreeCredential"},
		},
	})
	record := StoredCredential{Type: RecordTypeW3C, Credential: mustMarshal(t, compact)}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatJWTVC, normalized.ClaimFormat)
	require.NotNil(t, normalized.Credential)
	assert.Equal(t, "did:web:issuer.example", normalized.Credential["iss"])
	assert.Contains(t, normalized.Credential, "vc")
}

func TestNormalizeJSONLDCredential(t *testing.T) {
	credential := map[string]any{
		"@context": []any{"https://www.w3.org/2018/credentials/v1"},
		"type":     []any{"VerifiableCredential"},
		"credentialSubject": map[string]any{
			"name": "Alice",
		},
	}
	record := StoredCredential{Type: RecordTypeW3C, Credential: mustMarshal(t, credential)}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatLDPVC, normalized.ClaimFormat)
	require.NotNil(t, normalized.Credential)
	assert.Contains(t, normalized.Credential, "credentialSubject")
}

func TestNormalizeCompactJWTVerifiableCredential(t *testing.T) {
	compact := buildTestJWT(t, map[string]any{
		"iss": "did:web:issuer.example",
		"vc": map[string]any{
			"type": []any{"VerifiableCredential", "OpenBadgeCredential"},
		},
	})
	record := StoredCredential{Type: RecordTypeJWTVC, Credential: mustMarshal(t, compact)}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatJWTVC, normalized.ClaimFormat)
	require.NotNil(t, normalized.Credential)
	assert.Equal(t, "did:web:issuer.example", normalized.Credential["iss"])
	assert.Contains(t, normalized.Credential, "vc")
}

func TestNormalizeCompactJSONLDVerifiableCredential(t *testing.T) {
	credential := map[string]any{
		"@context": []any{"https://www.w3.org/2018/credentials/v1"},
		"type":     []any{"VerifiableCredential", "OpenBadgeCredential"},
		"credentialSubject": map[string]any{
			"achievement": "level III",
		},
	}
	record := StoredCredential{Type: RecordTypeJSONLDVC, Credential: mustMarshal(t, credential)}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatLDPVC, normalized.ClaimFormat)
	require.NotNil(t, normalized.Credential)
	assert.Contains(t, normalized.Credential, "credentialSubject")
}

func TestNormalizeMissingPayloadYieldsEmptyMapping(t *testing.T) {
	normalizer := NewNormalizer(NewSDJWTProcessor())

	for _, recordType := range []RecordType{RecordTypeW3C, RecordTypeJWTVC, RecordTypeJSONLDVC} {
		normalized := normalizer.Normalize(StoredCredential{Type: recordType})
		assert.NotNil(t, normalized.Credential, "type %s", recordType)
		assert.Empty(t, normalized.Credential, "type %s", recordType)
		assert.Empty(t, normalized.Raw, "type %s", recordType)
	}

	mdoc := normalizer.Normalize(StoredCredential{Type: RecordTypeMdoc})
	assert.NotNil(t, mdoc.Namespaces)
	assert.Empty(t, mdoc.Namespaces)

	sdjwt := normalizer.Normalize(StoredCredential{Type: RecordTypeSDJWT})
	assert.Equal(t, ClaimFormatSDJWT, sdjwt.ClaimFormat)
	assert.NotNil(t, sdjwt.Claims)
	assert.Empty(t, sdjwt.Claims)
	assert.Empty(t, sdjwt.Raw)
}

func TestNormalizeMalformedJWTFallsBackToRaw(t *testing.T) {
	record := StoredCredential{Type: RecordTypeW3C, Credential: mustMarshal(t, "not.a.jwt")}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatJWTVC, normalized.ClaimFormat)
	assert.Nil(t, normalized.Credential)
	assert.NotEmpty(t, normalized.Raw)
}

func TestNormalizeMdocCredential(t *testing.T) {
	item, err := cbor.Marshal(map[string]any{
		"digestID":          1,
		"random":            []byte{0x01, 0x02},
		"elementIdentifier": "family_name",
		"elementValue":      "Doe",
	})
	require.NoError(t, err)
	tagged, err := cbor.Marshal(cbor.Tag{Number: 24, Content: item})
	require.NoError(t, err)

	var raw cbor.RawMessage = tagged
	doc, err := cbor.Marshal(map[string]any{
		"issuerSigned": map[string]any{
			"nameSpaces": map[string][]cbor.RawMessage{
				"org.iso.18013.5.1": {raw},
			},
		},
	})
	require.NoError(t, err)

	record := StoredCredential{Type: RecordTypeMdoc, Base64URL: base64.RawURLEncoding.EncodeToString(doc)}
	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)

	assert.Equal(t, ClaimFormatMsoMdoc, normalized.ClaimFormat)
	require.Contains(t, normalized.Namespaces, "org.iso.18013.5.1")
	assert.Equal(t, "Doe", normalized.Namespaces["org.iso.18013.5.1"]["family_name"])
}

func TestNormalizeMalformedMdocReturnsEmptyNamespaces(t *testing.T) {
	record := StoredCredential{Type: RecordTypeMdoc, Base64URL: "%%%not-base64%%%"}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatMsoMdoc, normalized.ClaimFormat)
	assert.NotNil(t, normalized.Namespaces)
	assert.Empty(t, normalized.Namespaces)
}

func TestNormalizeSDJWTCredential(t *testing.T) {
	compact := buildTestSDJWT(t,
		map[string]any{"vct": "TantanCredential", "_sd_alg": "sha-256"},
		[]any{"salt-1", "name", "Alice"},
		[]any{"salt-2", "email", "alice@example.com"},
	)
	record := StoredCredential{Type: RecordTypeSDJWT, CompactSDJWT: compact}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatSDJWT, normalized.ClaimFormat)
	assert.Equal(t, "TantanCredential", normalized.Claims["vct"])
	assert.Equal(t, "Alice", normalized.Claims["name"])
	assert.Equal(t, "alice@example.com", normalized.Claims["email"])
	assert.NotContains(t, normalized.Claims, "_sd_alg")
}

func TestNormalizeMalformedSDJWTFallsBackToRaw(t *testing.T) {
	record := StoredCredential{Type: RecordTypeSDJWT, CompactSDJWT: "garbage~garbage"}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatSDJWT, normalized.ClaimFormat)
	assert.Nil(t, normalized.Claims)
	assert.NotEmpty(t, normalized.Raw)
}

func TestNormalizeUnknownRecordPassesThrough(t *testing.T) {
	record := StoredCredential{Type: "AnonCredsRecord", Raw: mustMarshal(t, map[string]any{"schema": "anon"})}

	normalized := NewNormalizer(NewSDJWTProcessor()).Normalize(record)
	assert.Equal(t, ClaimFormatUnknown, normalized.ClaimFormat)
	assert.JSONEq(t, `{"schema": "anon"}`, string(normalized.Raw))
}

func TestNormalizeAllPreservesOrder(t *testing.T) {
	records := []StoredCredential{
		{Type: RecordTypeW3C, Credential: mustMarshal(t, map[string]any{"type": "ld"})},
		{Type: "Mystery"},
	}

	normalized := NewNormalizer(NewSDJWTProcessor()).NormalizeAll(records)
	require.Len(t, normalized, 2)
	assert.Equal(t, ClaimFormatLDPVC, normalized[0].ClaimFormat)
	assert.Equal(t, ClaimFormatUnknown, normalized[1].ClaimFormat)
}

func TestDiscloseClaimsArrayElementDisclosure(t *testing.T) {
	compact := buildTestSDJWT(t,
		map[string]any{"vct": "OpenBadgeCredential"},
		[]any{"salt", "level III"},
	)

	claims, err := NewSDJWTProcessor().DiscloseClaims(compact)
	require.NoError(t, err)
	assert.Equal(t, "OpenBadgeCredential", claims["vct"])
}

func buildTestJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString(mustMarshal(t, claims))
	signature := base64.RawURLEncoding.EncodeToString([]byte("unverified"))
	return header + "." + payload + "." + signature
}

func buildTestSDJWT(t *testing.T, claims map[string]any, disclosures ...[]any) string {
	t.Helper()
	parts := []string{buildTestJWT(t, claims)}
	for _, disclosure := range disclosures {
		parts = append(parts, base64.RawURLEncoding.EncodeToString(mustMarshal(t, disclosure)))
	}
	out := ""
	for i, part := range parts {
		if i > 0 {
			out += "~"
		}
		out += part
	}
	return out + "~"
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
