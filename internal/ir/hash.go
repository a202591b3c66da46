package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDescriptor  = "covenant/descriptor/v1"
	DomainDeclaration = "covenant/declaration/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalDescriptor returns the canonical JSON encoding of a descriptor.
func CanonicalDescriptor(d *Descriptor) ([]byte, error) {
	data, err := MarshalCanonical(d.canonicalMap())
	if err != nil {
		return nil, fmt.Errorf("CanonicalDescriptor: %w", err)
	}
	return data, nil
}

// DescriptorHash computes the content-addressed identity of a descriptor.
// Two generation runs over unchanged declarations produce equal hashes.
func DescriptorHash(d *Descriptor) (string, error) {
	data, err := CanonicalDescriptor(d)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainDescriptor, data), nil
}

// DeclarationHash computes the identity of a declared type.
// The declaration is first encoded with encoding/json (struct field order is
// fixed) and then re-encoded canonically.
func DeclarationHash(t *ContractedType) (string, error) {
	h, err := declarationHash(t)
	if err != nil {
		return "", fmt.Errorf("DeclarationHash: %w", err)
	}
	return h, nil
}

// DeclarationSetHash computes the identity of a whole declaration set.
// The generation ledger keys runs by it.
func DeclarationSetHash(set *DeclarationSet) (string, error) {
	h, err := declarationHash(set)
	if err != nil {
		return "", fmt.Errorf("DeclarationSetHash: %w", err)
	}
	return h, nil
}

func declarationHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := MarshalCanonical(normalizeJSON(generic))
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainDeclaration, canonical), nil
}

// normalizeJSON drops nulls and empty lists (nil and empty slices hash the
// same) and turns decoded numbers into int64 so the generic value is
// accepted by MarshalCanonical.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if list, ok := elem.([]any); elem == nil || (ok && len(list) == 0) {
				continue
			}
			out[k] = normalizeJSON(elem)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			if elem == nil {
				continue
			}
			out = append(out, normalizeJSON(elem))
		}
		return out
	case float64:
		return int64(val)
	default:
		return val
	}
}

// MustDescriptorHash is like DescriptorHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDescriptorHash(d *Descriptor) string {
	h, err := DescriptorHash(d)
	if err != nil {
		panic(err)
	}
	return h
}
