package credential

import (
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"
)

// SDJWTProcessor recovers claims from compact SD-JWTs without verifying
// signatures; verification happens in the agent before records reach this
// service.
type SDJWTProcessor struct{}

func NewSDJWTProcessor() *SDJWTProcessor {
	return &SDJWTProcessor{}
}

// DiscloseClaims parses the issuer-signed JWT at the head of the compact
// serialization and applies every attached disclosure to its claim set.
// Selective-disclosure bookkeeping claims (_sd, _sd_alg) are stripped.
func (p *SDJWTProcessor) DiscloseClaims(compact string) (map[string]any, error) {
	segments := strings.Split(compact, "~")
	if segments[0] == "" {
		return nil, errors.New("sd-jwt has no issuer-signed jwt")
	}

	message, err := jws.Parse([]byte(segments[0]))
	if err != nil {
		return nil, errors.Wrap(err, "parsing issuer-signed jwt")
	}

	claims := make(map[string]any)
	if err = json.Unmarshal(message.Payload(), &claims); err != nil {
		return nil, errors.Wrap(err, "decoding jwt payload")
	}
	delete(claims, "_sd")
	delete(claims, "_sd_alg")

	for _, segment := range segments[1:] {
		if segment == "" {
			// Trailing separator before an absent key-binding jwt.
			continue
		}
		name, value, err := decodeDisclosure(segment)
		if err != nil {
			return nil, err
		}
		if name != "" {
			claims[name] = value
		}
	}
	return claims, nil
}

// decodeDisclosure unpacks one base64url disclosure. Object disclosures are
// [salt, name, value]; array element disclosures are [salt, value] and carry
// no name to merge at the top level.
func decodeDisclosure(segment string) (string, any, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
	if err != nil {
		return "", nil, errors.Wrap(err, "decoding disclosure")
	}
	var parts []any
	if err = json.Unmarshal(decoded, &parts); err != nil {
		return "", nil, errors.Wrap(err, "parsing disclosure")
	}
	switch len(parts) {
	case 3:
		name, ok := parts[1].(string)
		if !ok {
			return "", nil, errors.New("disclosure name is not a string")
		}
		return name, parts[2], nil
	case 2:
		return "", parts[1], nil
	default:
		return "", nil, errors.Errorf("disclosure has %d parts, want 2 or 3", len(parts))
	}
}
