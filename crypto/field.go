package crypto

// FieldState classifies the outcome of decrypting a stored field.
type FieldState int

const (
	// FieldDecrypted means the blob authenticated and decrypted cleanly.
	FieldDecrypted FieldState = iota
	// FieldLegacyPlaintext means the value does not have the encrypted
	// blob shape at all; it predates migration and is returned as-is.
	FieldLegacyPlaintext
	// FieldAuthFailed means the value looks encrypted but failed to
	// authenticate: wrong key, truncation, or corruption.
	FieldAuthFailed
)

// FieldResult is the tagged outcome of DecryptField. Text holds the
// plaintext when State is FieldDecrypted and the original input otherwise.
type FieldResult struct {
	Text  string
	State FieldState
}

// DecryptField decrypts a stored field value under the given key and
// classifies the outcome, so callers can tell genuine corruption apart from
// legacy plaintext. The compatibility boundary that collapses both failure
// states back to the original input is Decrypt.
func DecryptField(blob string, key []byte) FieldResult {
	if blob == "" {
		return FieldResult{Text: "", State: FieldDecrypted}
	}
	if !IsEncrypted(blob) {
		return FieldResult{Text: blob, State: FieldLegacyPlaintext}
	}
	iv, ciphertext, err := splitBlob(blob)
	if err != nil {
		return FieldResult{Text: blob, State: FieldAuthFailed}
	}
	plaintext, err := open(iv, ciphertext, key)
	if err != nil {
		return FieldResult{Text: blob, State: FieldAuthFailed}
	}
	return FieldResult{Text: string(plaintext), State: FieldDecrypted}
}
