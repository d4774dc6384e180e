/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package envelope protects payment and personal data at rest with envelope
// encryption: a fresh data key per record, generated by a key-management
// service and used locally for AES-256-GCM, with automatic failover across
// KMS regions. Plaintext data keys are scoped to a single call and zeroed
// immediately after use.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parkerflight/bookingcore/internal/resilience"
)

const (
	// Algorithm is fixed; SchemaVersion guards against decrypting payloads
	// produced by an incompatible layout.
	Algorithm     = "AES-256-GCM"
	SchemaVersion = 2
)

// KeyClass selects the master key alias used to wrap a record's data key.
// One key is never reused across classes.
type KeyClass string

const (
	KeyClassGeneral KeyClass = "general"
	KeyClassPII     KeyClass = "pii"
	KeyClassPayment KeyClass = "payment"
)

// EncryptedPayload is the immutable result of one Encrypt call. The wrapped
// data key is only ever decryptable by the key-management service of the
// region that produced it.
type EncryptedPayload struct {
	Ciphertext        string            `json:"ciphertext"`
	WrappedDataKey    string            `json:"wrapped_data_key"`
	IV                string            `json:"iv"`
	Algorithm         string            `json:"algorithm"`
	KeyAlias          string            `json:"key_alias"`
	SchemaVersion     int               `json:"schema_version"`
	Region            string            `json:"region"`
	EncryptionContext map[string]string `json:"encryption_context,omitempty"`
}

// KeyManager is the per-region key-management client. Implementations are
// long-lived connection objects safe for concurrent use.
type KeyManager interface {
	Region() string
	GenerateDataKey(ctx context.Context, keyAlias string, encryptionContext map[string]string) (plaintextKey, wrappedKey []byte, err error)
	Decrypt(ctx context.Context, wrappedKey []byte, encryptionContext map[string]string) ([]byte, error)
}

// Service performs envelope encryption against a primary region with ordered
// fallbacks.
type Service struct {
	primary     KeyManager
	fallbacks   []KeyManager
	aliases     map[KeyClass]string
	executor    *resilience.Executor
	application string
	kmsPolicy   *resilience.RetryPolicy
}

// NewService creates an envelope encryption service. KMS round-trips are
// issued through the executor under the context "kms-encrypt-<region>" or
// "kms-decrypt-<region>".
func NewService(primary KeyManager, fallbacks []KeyManager, aliases map[KeyClass]string, executor *resilience.Executor, application string) *Service {
	return &Service{
		primary:     primary,
		fallbacks:   fallbacks,
		aliases:     aliases,
		executor:    executor,
		application: application,
		kmsPolicy:   resilience.DefaultPolicy(),
	}
}

// Encrypt serializes nothing itself; callers pass the exact bytes to protect.
// The primary region is tried first, then each fallback in order; the first
// success wins and the payload is tagged with the region actually used. All
// regions failing is fatal for the caller's write path: no plaintext fallback
// is ever written.
func (s *Service) Encrypt(ctx context.Context, plaintext []byte, class KeyClass) (*EncryptedPayload, error) {
	alias, ok := s.aliases[class]
	if !ok {
		return nil, fmt.Errorf("no key alias configured for key class %q", class)
	}

	var lastErr error
	for _, km := range s.regions() {
		payload, err := s.encryptWithRegion(ctx, km, plaintext, alias, class)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{
			"region":    km.Region(),
			"key_class": class,
		}).Warnf("region encryption failed: %v", err)
	}

	return nil, &EncryptionUnavailableError{Err: lastErr}
}

// Decrypt routes to the KMS client for the payload's region, unwraps the data
// key there and decrypts locally. Tamper, corruption, an unknown schema
// version or an unreachable region all surface as DecryptionError.
func (s *Service) Decrypt(ctx context.Context, payload *EncryptedPayload) ([]byte, error) {
	if payload.SchemaVersion != SchemaVersion {
		return nil, &DecryptionError{Reason: fmt.Sprintf("unrecognized schema version %d", payload.SchemaVersion)}
	}
	km := s.managerForRegion(payload.Region)
	if km == nil {
		return nil, &DecryptionError{Reason: fmt.Sprintf("no KMS client available for region %q", payload.Region)}
	}

	wrapped, err := base64.StdEncoding.DecodeString(payload.WrappedDataKey)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed wrapped data key", Err: err}
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed IV", Err: err}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}

	opContext := "kms-decrypt-" + payload.Region
	key, err := resilience.Run(ctx, s.executor, opContext, s.kmsPolicy, func(ctx context.Context) ([]byte, error) {
		return km.Decrypt(ctx, wrapped, payload.EncryptionContext)
	})
	if err != nil {
		return nil, &DecryptionError{Reason: "data key unwrap failed", Err: err}
	}
	defer zeroBytes(key)

	plaintext, err := openGCM(key, iv, ciphertext)
	if err != nil {
		return nil, &DecryptionError{Reason: "ciphertext authentication failed", Err: err}
	}
	return plaintext, nil
}

// RegionHealth is one region's health check result.
type RegionHealth struct {
	Region  string        `json:"region"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthCheck round-trips a small test payload through every configured
// region and reports per-region health plus latency. It calls the key
// managers directly so monitoring never trips the write path's breakers.
func (s *Service) HealthCheck(ctx context.Context) []RegionHealth {
	alias := s.aliases[KeyClassGeneral]
	results := make([]RegionHealth, 0, len(s.fallbacks)+1)

	for _, km := range s.regions() {
		start := time.Now()
		err := s.roundTrip(ctx, km, alias)
		health := RegionHealth{
			Region:  km.Region(),
			Healthy: err == nil,
			Latency: time.Since(start),
		}
		if err != nil {
			health.Error = err.Error()
		}
		results = append(results, health)
	}
	return results
}

// Metadata reports the service's encryption parameters for audit purposes.
func (s *Service) Metadata() map[string]interface{} {
	fallbackRegions := make([]string, 0, len(s.fallbacks))
	for _, km := range s.fallbacks {
		fallbackRegions = append(fallbackRegions, km.Region())
	}
	aliases := make(map[string]string, len(s.aliases))
	for class, alias := range s.aliases {
		aliases[string(class)] = alias
	}
	return map[string]interface{}{
		"algorithm":        Algorithm,
		"schema_version":   SchemaVersion,
		"key_aliases":      aliases,
		"primary_region":   s.primary.Region(),
		"fallback_regions": fallbackRegions,
	}
}

func (s *Service) encryptWithRegion(ctx context.Context, km KeyManager, plaintext []byte, alias string, class KeyClass) (*EncryptedPayload, error) {
	encryptionContext := map[string]string{
		"purpose":     purposeFor(class),
		"application": s.application,
		"region":      km.Region(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	type dataKey struct {
		plain   []byte
		wrapped []byte
	}
	opContext := "kms-encrypt-" + km.Region()
	dk, err := resilience.Run(ctx, s.executor, opContext, s.kmsPolicy, func(ctx context.Context) (dataKey, error) {
		plain, wrapped, err := km.GenerateDataKey(ctx, alias, encryptionContext)
		if err != nil {
			return dataKey{}, err
		}
		return dataKey{plain: plain, wrapped: wrapped}, nil
	})
	if err != nil {
		return nil, err
	}
	defer zeroBytes(dk.plain)

	iv, ciphertext, err := sealGCM(dk.plain, plaintext)
	if err != nil {
		return nil, err
	}

	return &EncryptedPayload{
		Ciphertext:        base64.StdEncoding.EncodeToString(ciphertext),
		WrappedDataKey:    base64.StdEncoding.EncodeToString(dk.wrapped),
		IV:                base64.StdEncoding.EncodeToString(iv),
		Algorithm:         Algorithm,
		KeyAlias:          alias,
		SchemaVersion:     SchemaVersion,
		Region:            km.Region(),
		EncryptionContext: encryptionContext,
	}, nil
}

// roundTrip encrypts and decrypts a fixed probe against one region without
// going through the executor.
func (s *Service) roundTrip(ctx context.Context, km KeyManager, alias string) error {
	probe := []byte(`{"test":"health-check"}`)
	encryptionContext := map[string]string{
		"purpose":     "health-check",
		"application": s.application,
		"region":      km.Region(),
	}

	plain, wrapped, err := km.GenerateDataKey(ctx, alias, encryptionContext)
	if err != nil {
		return err
	}
	defer zeroBytes(plain)

	iv, ciphertext, err := sealGCM(plain, probe)
	if err != nil {
		return err
	}

	unwrapped, err := km.Decrypt(ctx, wrapped, encryptionContext)
	if err != nil {
		return err
	}
	defer zeroBytes(unwrapped)

	decrypted, err := openGCM(unwrapped, iv, ciphertext)
	if err != nil {
		return err
	}
	if string(decrypted) != string(probe) {
		return fmt.Errorf("health check round-trip mismatch")
	}
	return nil
}

func (s *Service) regions() []KeyManager {
	return append([]KeyManager{s.primary}, s.fallbacks...)
}

func (s *Service) managerForRegion(region string) KeyManager {
	if s.primary.Region() == region {
		return s.primary
	}
	for _, km := range s.fallbacks {
		if km.Region() == region {
			return km
		}
	}
	return nil
}

func purposeFor(class KeyClass) string {
	switch class {
	case KeyClassPayment:
		return "payment-data"
	case KeyClassPII:
		return "user-pii-data"
	default:
		return "general-data"
	}
}

// sealGCM encrypts plaintext with a fresh 96-bit IV under AES-256-GCM.
func sealGCM(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

func openGCM(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ciphertext, nil)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
