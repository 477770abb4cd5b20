package privacy

import (
	"crypto/sha256"
	"encoding/hex"
)

// Anonymizer converts patient identifiers into salted one-way digests so the
// hot and cold stores never retain a raw identifier. The digest is
// deterministic for a given salt, so repeated readings for one patient link
// together in storage without revealing who the patient is.
type Anonymizer struct {
	salt string
}

// NewAnonymizer creates an anonymizer with the process-wide PII salt.
// Rotating the salt invalidates linkage of historical records to new ones;
// that is an accepted operational trade-off.
func NewAnonymizer(salt string) *Anonymizer {
	return &Anonymizer{salt: salt}
}

// HashIdentifier returns the hex-encoded SHA-256 digest of the identifier
// concatenated with the salt.
func (a *Anonymizer) HashIdentifier(patientID string) string {
	sum := sha256.Sum256([]byte(patientID + a.salt))
	return hex.EncodeToString(sum[:])
}
