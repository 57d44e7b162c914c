// Package keypair generates and persists the RSA key pair used for Snowflake
// key-pair (JWT) authentication.
package keypair

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"flakeview/internal/common"
	"flakeview/pkg/errors"
)

const (
	// DefaultBits is the modulus size Snowflake documents for key-pair auth.
	DefaultBits = 2048

	// PublicExponent is fixed by crypto/rsa at 65537.
	PublicExponent = 65537

	// DefaultDir is the directory, relative to the working directory, keys are written to.
	DefaultDir = ".snowflake"

	PrivateKeyFile = "rsa_key.pem"
	PublicKeyFile  = "rsa_key.pub"

	privateKeyBlock = "PRIVATE KEY"
	publicKeyBlock  = "PUBLIC KEY"
)

// KeyPair holds PEM encoded key material. The private key is unencrypted PKCS8.
type KeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
}

// Paths reports where a KeyPair was written.
type Paths struct {
	Dir        string
	PrivateKey string
	PublicKey  string
}

// Generate creates a 2048 bit RSA key pair.
func Generate() (*KeyPair, error) {
	return GenerateWithSize(DefaultBits)
}

// GenerateWithSize creates an RSA key pair with the given modulus size.
func GenerateWithSize(bits int) (*KeyPair, error) {
	if bits < DefaultBits {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("RSA key size %d is below the %d bit minimum", bits, DefaultBits)).
			WithContext("bits", bits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKeyGeneration, "Failed to generate RSA key").
			WithContext("bits", bits)
	}
	if key.PublicKey.E != PublicExponent {
		return nil, errors.New(errors.ErrCodeKeyGeneration, fmt.Sprintf("unexpected public exponent %d", key.PublicKey.E))
	}

	return FromPrivateKey(key)
}

// FromPrivateKey encodes an existing RSA key.
func FromPrivateKey(key *rsa.PrivateKey) (*KeyPair, error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKeyGeneration, "Failed to encode private key as PKCS8")
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKeyGeneration, "Failed to encode public key as SubjectPublicKeyInfo")
	}

	return &KeyPair{
		PrivateKey: pem.EncodeToMemory(&pem.Block{Type: privateKeyBlock, Bytes: privDER}),
		PublicKey:  pem.EncodeToMemory(&pem.Block{Type: publicKeyBlock, Bytes: pubDER}),
	}, nil
}

// Write stores both keys in dir, creating it if needed. Existing files are
// overwritten.
func (kp *KeyPair) Write(dir string) (Paths, error) {
	cleaned, err := common.CleanPath(dir)
	if err != nil {
		return Paths{}, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid key directory").
			WithContext("dir", dir)
	}

	if err := os.MkdirAll(cleaned, common.DirPermissionSecure); err != nil {
		return Paths{}, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create key directory").
			WithContext("dir", cleaned)
	}

	paths := Paths{Dir: cleaned}
	if paths.PrivateKey, err = common.JoinPath(cleaned, PrivateKeyFile); err != nil {
		return Paths{}, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid key file path").
			WithContext("dir", cleaned)
	}
	if paths.PublicKey, err = common.JoinPath(cleaned, PublicKeyFile); err != nil {
		return Paths{}, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid key file path").
			WithContext("dir", cleaned)
	}

	if err := writeFile(paths.PrivateKey, kp.PrivateKey, common.FilePermissionSecure); err != nil {
		return Paths{}, err
	}
	if err := writeFile(paths.PublicKey, kp.PublicKey, common.FilePermissionNormal); err != nil {
		return Paths{}, err
	}

	return paths, nil
}

// writeFile replaces path with data. WriteFile keeps the mode of an
// existing file, so the mode is reapplied.
func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil { // #nosec G306 - perm is chosen per key kind
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write key file").
			WithContext("path", path)
	}
	if err := os.Chmod(path, perm); err != nil {
		return errors.Wrap(err, errors.ErrCodeFilePermission, "Failed to set key file permissions").
			WithContext("path", path)
	}
	return nil
}

// PublicKeyBody returns the base64 body of the public key, the value Snowflake
// expects in ALTER USER ... SET RSA_PUBLIC_KEY.
func (kp *KeyPair) PublicKeyBody() string {
	var b strings.Builder
	for _, line := range strings.Split(string(kp.PublicKey), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// Fingerprint returns the SHA256 fingerprint in the form Snowflake shows for
// RSA_PUBLIC_KEY_FP.
func (kp *KeyPair) Fingerprint() (string, error) {
	block, _ := pem.Decode(kp.PublicKey)
	if block == nil {
		return "", errors.New(errors.ErrCodeInvalidKey, "Public key is not PEM encoded")
	}
	sum := sha256.Sum256(block.Bytes)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// AlterUserStatement renders the statement an operator runs to register the key.
func (kp *KeyPair) AlterUserStatement(user string) string {
	if user == "" {
		user = "<user>"
	}
	return fmt.Sprintf("ALTER USER %s SET RSA_PUBLIC_KEY='%s';", user, kp.PublicKeyBody())
}

// ParsePrivateKey decodes an unencrypted PKCS8 RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New(errors.ErrCodeInvalidKey, "Private key is not PEM encoded").
			WithSuggestions("Provide the contents of rsa_key.pem, including the BEGIN/END lines")
	}

	switch block.Type {
	case privateKeyBlock:
	case "ENCRYPTED PRIVATE KEY":
		return nil, errors.New(errors.ErrCodeInvalidKey, "Encrypted private keys are not supported").
			WithSuggestions("Regenerate the key with 'flakeview keygen' or decrypt it with openssl pkcs8")
	default:
		return nil, errors.New(errors.ErrCodeInvalidKey, fmt.Sprintf("Unexpected PEM block %q, want %q", block.Type, privateKeyBlock))
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidKey, "Failed to parse PKCS8 private key")
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidKey, fmt.Sprintf("Private key is %T, want RSA", parsed))
	}
	return key, nil
}

// ParsePublicKey decodes a SubjectPublicKeyInfo RSA public key.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != publicKeyBlock {
		return nil, errors.New(errors.ErrCodeInvalidKey, "Public key is not a PEM \"PUBLIC KEY\" block")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidKey, "Failed to parse SubjectPublicKeyInfo")
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidKey, fmt.Sprintf("Public key is %T, want RSA", parsed))
	}
	return key, nil
}

// LoadPrivateKeyFile reads and parses a private key file.
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid private key path").
			WithContext("path", path)
	}

	data, err := os.ReadFile(cleaned) // #nosec G304 - path is validated
	if err != nil {
		code := errors.ErrCodeFileOperation
		if os.IsNotExist(err) {
			code = errors.ErrCodeFileNotFound
		}
		return nil, errors.Wrap(err, code, "Failed to read private key").
			WithContext("path", cleaned)
	}

	return ParsePrivateKey(data)
}
