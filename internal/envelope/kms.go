package envelope

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"

	"github.com/parkerflight/bookingcore/config"
	"github.com/parkerflight/bookingcore/internal/resilience"
)

// AWSKeyManager is the AWS KMS implementation of KeyManager for one region.
type AWSKeyManager struct {
	client *kms.KMS
	region string
}

// NewAWSKeyManager creates a KMS client bound to a single region. The client
// is a long-lived, reusable connection object safe for concurrent use.
func NewAWSKeyManager(region, accessKeyID, secretAccessKey string) (*AWSKeyManager, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if accessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKeyID, secretAccessKey, "")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return &AWSKeyManager{
		client: kms.New(sess),
		region: region,
	}, nil
}

func (m *AWSKeyManager) Region() string {
	return m.region
}

// GenerateDataKey asks KMS for a fresh AES-256 data key wrapped under the
// given alias, bound to the encryption context for auditability.
func (m *AWSKeyManager) GenerateDataKey(ctx context.Context, keyAlias string, encryptionContext map[string]string) ([]byte, []byte, error) {
	out, err := m.client.GenerateDataKeyWithContext(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(keyAlias),
		KeySpec:           aws.String(kms.DataKeySpecAes256),
		EncryptionContext: aws.StringMap(encryptionContext),
	})
	if err != nil {
		return nil, nil, err
	}
	return out.Plaintext, out.CiphertextBlob, nil
}

// Decrypt unwraps a data key. The encryption context must match the one the
// key was generated under.
func (m *AWSKeyManager) Decrypt(ctx context.Context, wrappedKey []byte, encryptionContext map[string]string) ([]byte, error) {
	out, err := m.client.DecryptWithContext(ctx, &kms.DecryptInput{
		CiphertextBlob:    wrappedKey,
		EncryptionContext: aws.StringMap(encryptionContext),
	})
	if err != nil {
		return nil, err
	}
	return out.Plaintext, nil
}

// NewServiceFromConfig wires an envelope service from configuration: one AWS
// key manager for the primary region and one per fallback region.
func NewServiceFromConfig(conf *config.Configuration, executor *resilience.Executor) (*Service, error) {
	primary, err := NewAWSKeyManager(conf.KMS.PrimaryRegion, conf.KMS.AwsAccessKeyId, conf.KMS.AwsSecretAccessKey)
	if err != nil {
		return nil, err
	}
	fallbacks := make([]KeyManager, 0, len(conf.KMS.FallbackRegions))
	for _, region := range conf.KMS.FallbackRegions {
		km, err := NewAWSKeyManager(region, conf.KMS.AwsAccessKeyId, conf.KMS.AwsSecretAccessKey)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, km)
	}
	aliases := map[KeyClass]string{
		KeyClassGeneral: conf.KMS.KeyAliases.General,
		KeyClassPII:     conf.KMS.KeyAliases.PII,
		KeyClassPayment: conf.KMS.KeyAliases.Payment,
	}
	return NewService(primary, fallbacks, aliases, executor, conf.ProjectName), nil
}
