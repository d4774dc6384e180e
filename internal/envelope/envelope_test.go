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

package envelope

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkerflight/bookingcore/internal/resilience"
)

// fakeKeyManager wraps data keys by prefixing them with the region name. It
// records the encryption context it was handed so tests can assert on it.
type fakeKeyManager struct {
	region      string
	failing     bool
	calls       int
	lastContext map[string]string
}

func (f *fakeKeyManager) Region() string { return f.region }

func (f *fakeKeyManager) GenerateDataKey(_ context.Context, keyAlias string, encryptionContext map[string]string) ([]byte, []byte, error) {
	f.calls++
	f.lastContext = encryptionContext
	if f.failing {
		return nil, nil, errors.New("kms unavailable")
	}
	plain := make([]byte, 32)
	if _, err := rand.Read(plain); err != nil {
		return nil, nil, err
	}
	wrapped := append([]byte(f.region+":"), plain...)
	return plain, wrapped, nil
}

func (f *fakeKeyManager) Decrypt(_ context.Context, wrappedKey []byte, encryptionContext map[string]string) ([]byte, error) {
	f.calls++
	f.lastContext = encryptionContext
	if f.failing {
		return nil, errors.New("kms unavailable")
	}
	prefix := f.region + ":"
	if len(wrappedKey) <= len(prefix) || string(wrappedKey[:len(prefix)]) != prefix {
		return nil, errors.New("wrapped key not issued by this region")
	}
	out := make([]byte, len(wrappedKey)-len(prefix))
	copy(out, wrappedKey[len(prefix):])
	return out, nil
}

func testAliases() map[KeyClass]string {
	return map[KeyClass]string{
		KeyClassGeneral: "alias/test-general",
		KeyClassPII:     "alias/test-pii",
		KeyClassPayment: "alias/test-payment",
	}
}

func fastKMSPolicy() *resilience.RetryPolicy {
	return &resilience.RetryPolicy{
		MaxRetries:      1,
		BaseDelay:       time.Millisecond,
		MaxDelay:        2 * time.Millisecond,
		ExponentialBase: 2.0,
	}
}

func newTestService(primary KeyManager, fallbacks ...KeyManager) *Service {
	s := NewService(primary, fallbacks, testAliases(), resilience.NewExecutor(), "bookingcore-test")
	s.kmsPolicy = fastKMSPolicy()
	return s
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	primary := &fakeKeyManager{region: "us-east-1"}
	svc := newTestService(primary)

	plaintext := []byte(`{"card_last_four":"4242"}`)
	payload, err := svc.Encrypt(context.Background(), plaintext, KeyClassPayment)
	require.NoError(t, err)

	assert.Equal(t, Algorithm, payload.Algorithm)
	assert.Equal(t, SchemaVersion, payload.SchemaVersion)
	assert.Equal(t, "us-east-1", payload.Region)
	assert.Equal(t, "alias/test-payment", payload.KeyAlias)
	assert.Equal(t, "payment-data", payload.EncryptionContext["purpose"])
	assert.Equal(t, "bookingcore-test", payload.EncryptionContext["application"])
	assert.NotEqual(t, string(plaintext), payload.Ciphertext)

	decrypted, err := svc.Decrypt(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptFreshDataKeyPerRecord(t *testing.T) {
	primary := &fakeKeyManager{region: "us-east-1"}
	svc := newTestService(primary)

	first, err := svc.Encrypt(context.Background(), []byte("record one"), KeyClassGeneral)
	require.NoError(t, err)
	second, err := svc.Encrypt(context.Background(), []byte("record one"), KeyClassGeneral)
	require.NoError(t, err)

	assert.NotEqual(t, first.WrappedDataKey, second.WrappedDataKey)
	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestEncryptFailsOverToFallbackRegion(t *testing.T) {
	primary := &fakeKeyManager{region: "us-east-1", failing: true}
	fallback := &fakeKeyManager{region: "us-west-2"}
	svc := newTestService(primary, fallback)

	payload, err := svc.Encrypt(context.Background(), []byte("pii record"), KeyClassPII)
	require.NoError(t, err)

	assert.Equal(t, "us-west-2", payload.Region, "payload is tagged with the region that produced it")
	assert.Greater(t, primary.calls, 0, "primary attempted first")

	// Decryption routes to the fallback region's client.
	decrypted, err := svc.Decrypt(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("pii record"), decrypted)
}

func TestEncryptAllRegionsUnavailable(t *testing.T) {
	primary := &fakeKeyManager{region: "us-east-1", failing: true}
	fallback := &fakeKeyManager{region: "us-west-2", failing: true}
	svc := newTestService(primary, fallback)

	_, err := svc.Encrypt(context.Background(), []byte("record"), KeyClassGeneral)

	var unavailable *EncryptionUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestEncryptUnknownKeyClass(t *testing.T) {
	svc := newTestService(&fakeKeyManager{region: "us-east-1"})

	_, err := svc.Encrypt(context.Background(), []byte("record"), KeyClass("loyalty"))
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	svc := newTestService(&fakeKeyManager{region: "us-east-1"})

	payload, err := svc.Encrypt(context.Background(), []byte("intact"), KeyClassGeneral)
	require.NoError(t, err)

	tampered := *payload
	raw := []byte(tampered.Ciphertext)
	raw[0] ^= 0x01
	tampered.Ciphertext = string(raw)

	_, err = svc.Decrypt(context.Background(), &tampered)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestDecryptRejectsUnknownSchemaVersion(t *testing.T) {
	svc := newTestService(&fakeKeyManager{region: "us-east-1"})

	payload, err := svc.Encrypt(context.Background(), []byte("record"), KeyClassGeneral)
	require.NoError(t, err)
	payload.SchemaVersion = 1

	_, err = svc.Decrypt(context.Background(), payload)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Reason, "schema version")
}

func TestDecryptRejectsUnknownRegion(t *testing.T) {
	svc := newTestService(&fakeKeyManager{region: "us-east-1"})

	payload, err := svc.Encrypt(context.Background(), []byte("record"), KeyClassGeneral)
	require.NoError(t, err)
	payload.Region = "ap-southeast-2"

	_, err = svc.Decrypt(context.Background(), payload)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestHealthCheckReportsPerRegion(t *testing.T) {
	primary := &fakeKeyManager{region: "us-east-1"}
	fallback := &fakeKeyManager{region: "us-west-2", failing: true}
	svc := newTestService(primary, fallback)

	results := svc.HealthCheck(context.Background())
	require.Len(t, results, 2)

	assert.Equal(t, "us-east-1", results[0].Region)
	assert.True(t, results[0].Healthy)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, "us-west-2", results[1].Region)
	assert.False(t, results[1].Healthy)
	assert.NotEmpty(t, results[1].Error)
}

func TestHealthCheckBypassesBreaker(t *testing.T) {
	primary := &fakeKeyManager{region: "us-east-1", failing: true}
	executor := resilience.NewExecutorWithSettings(resilience.Settings{FailureThreshold: 1, CooldownPeriod: time.Minute})
	svc := NewService(primary, nil, testAliases(), executor, "bookingcore-test")
	svc.kmsPolicy = fastKMSPolicy()

	// Repeated health checks fail but must never trip the write path breaker.
	for i := 0; i < 3; i++ {
		results := svc.HealthCheck(context.Background())
		require.Len(t, results, 1)
		assert.False(t, results[0].Healthy)
	}

	open, _ := executor.BreakerState("kms-encrypt-us-east-1")
	assert.False(t, open)
}

func TestMetadataDescribesConfiguration(t *testing.T) {
	svc := newTestService(&fakeKeyManager{region: "us-east-1"}, &fakeKeyManager{region: "eu-west-1"})

	meta := svc.Metadata()
	assert.Equal(t, Algorithm, meta["algorithm"])
	assert.Equal(t, SchemaVersion, meta["schema_version"])
	assert.Equal(t, "us-east-1", meta["primary_region"])
	assert.Equal(t, []string{"eu-west-1"}, meta["fallback_regions"])
}
