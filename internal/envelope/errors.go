package envelope

import "fmt"

// EncryptionUnavailableError is returned when every configured region failed
// to produce a data key. It is fatal for the caller's write path: a caller
// that cannot encrypt must not persist plaintext.
type EncryptionUnavailableError struct {
	Err error
}

func (e *EncryptionUnavailableError) Error() string {
	return fmt.Sprintf("encryption unavailable in all regions: %v", e.Err)
}

func (e *EncryptionUnavailableError) Unwrap() error {
	return e.Err
}

// DecryptionError is returned when a payload cannot be decrypted: the
// region's client is unavailable, the GCM tag check failed, or the schema
// version is unrecognized. Corrupted plaintext is never returned.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}
