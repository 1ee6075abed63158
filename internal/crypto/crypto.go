// Package crypto seals calendar credentials before they are stored.
package crypto

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Encryptor encrypts and decrypts opaque credential blobs.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KMSClient is the subset of *kms.Client used by KMSEncryptor.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSEncryptor implements Encryptor with AWS KMS.
type KMSEncryptor struct {
	client KMSClient
	keyID  string
}

// NewKMSEncryptor returns an Encryptor bound to keyID (key id, ARN or alias).
func NewKMSEncryptor(client KMSClient, keyID string) *KMSEncryptor {
	return &KMSEncryptor{client: client, keyID: keyID}
}

func (e *KMSEncryptor) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := e.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(e.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (e *KMSEncryptor) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("kms decrypt: empty ciphertext")
	}
	out, err := e.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
		KeyId:          aws.String(e.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}

const plainPrefix = "plain:"

// PlainEncryptor tags credentials without encrypting them. Local development only.
type PlainEncryptor struct{}

func NewPlainEncryptor() *PlainEncryptor { return &PlainEncryptor{} }

func (PlainEncryptor) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(plainPrefix)+len(plaintext))
	out = append(out, plainPrefix...)
	return append(out, plaintext...), nil
}

func (PlainEncryptor) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < len(plainPrefix) || string(ciphertext[:len(plainPrefix)]) != plainPrefix {
		return nil, errors.New("plain decrypt: missing prefix")
	}
	return append([]byte(nil), ciphertext[len(plainPrefix):]...), nil
}
