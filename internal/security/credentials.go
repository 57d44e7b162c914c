// Package security stores Snowflake credentials in the OS keyring, falling
// back to AES-GCM encrypted files when no keyring is available.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"flakeview/internal/common"
	"flakeview/pkg/errors"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Keyring service name
	keyringService = "flakeview"
	// Salt for key derivation
	saltSize = 32
	// Number of iterations for PBKDF2
	pbkdf2Iterations = 100000
	// Key size for AES-256
	keySize = 32

	// KeyringEnv set to "false" forces the encrypted file store, "true" forces the keyring.
	KeyringEnv = "FLAKEVIEW_USE_KEYRING"
)

// Well-known credential names.
const (
	PrivateKeyCredential = "snowflake-private-key"
	PasswordCredential   = "snowflake-password"
)

// Credential types.
const (
	TypePrivateKey = "private_key"
	TypePassword   = "password"
)

var credentialName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Backend selects where credentials are kept.
type Backend int

const (
	// BackendAuto uses the keyring when the platform has one.
	BackendAuto Backend = iota
	BackendKeyring
	BackendFile
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendKeyring:
		return "keyring"
	case BackendFile:
		return "encrypted-file"
	default:
		return "auto"
	}
}

// Options configures a CredentialManager.
type Options struct {
	// Dir holds encrypted credential files and the keyring index.
	// Defaults to ~/.flakeview/credentials.
	Dir     string
	Backend Backend
}

// CredentialManager handles secure storage and retrieval of credentials
type CredentialManager struct {
	useKeyring bool
	masterKey  []byte
	dir        string
}

// Credential represents a stored credential
type Credential struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Encrypted bool              `json:"encrypted"`
}

// NewCredentialManager creates a credential manager with default options.
func NewCredentialManager() (*CredentialManager, error) {
	return NewCredentialManagerWithOptions(Options{})
}

// NewCredentialManagerWithOptions creates a credential manager.
func NewCredentialManagerWithOptions(opts Options) (*CredentialManager, error) {
	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(common.AppDir(), "credentials")
	}
	cleaned, err := common.CleanPath(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid credentials directory").
			WithContext("path", dir)
	}

	cm := &CredentialManager{dir: cleaned}
	switch opts.Backend {
	case BackendKeyring:
		cm.useKeyring = true
	case BackendFile:
		cm.useKeyring = false
	default:
		cm.useKeyring = isKeyringAvailable()
	}

	// Initialize master key if not using system keyring
	if !cm.useKeyring {
		key, err := cm.getMasterKey()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeEncryptionFailed, "Failed to initialize credential store key").
				WithContext("path", cm.dir)
		}
		cm.masterKey = key
	}

	return cm, nil
}

// Backend reports which store is in use.
func (cm *CredentialManager) Backend() Backend {
	if cm.useKeyring {
		return BackendKeyring
	}
	return BackendFile
}

// StoreCredential securely stores a credential, replacing any existing value.
func (cm *CredentialManager) StoreCredential(name, credType, value string, metadata map[string]string) error {
	if err := validateName(name); err != nil {
		return err
	}

	var err error
	if cm.useKeyring {
		err = cm.storeInKeyring(name, credType, value, metadata)
	} else {
		err = cm.storeEncrypted(name, credType, value, metadata)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEncryptionFailed, "Failed to store credential").
			WithContext("credential", name).
			WithContext("backend", cm.Backend().String())
	}
	return nil
}

// GetCredential retrieves a stored credential. A missing credential
// returns an error with code ErrCodeNotFound.
func (cm *CredentialManager) GetCredential(name string) (*Credential, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var (
		cred *Credential
		err  error
	)
	if cm.useKeyring {
		cred, err = cm.getFromKeyring(name)
	} else {
		cred, err = cm.getEncrypted(name)
	}

	switch {
	case err == nil:
		return cred, nil
	case errors.Is(err, keyring.ErrNotFound) || os.IsNotExist(err):
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("Credential %q not found", name)).
			WithContext("credential", name).
			WithContext("backend", cm.Backend().String())
	default:
		return nil, errors.Wrap(err, errors.ErrCodeEncryptionFailed, "Failed to read credential").
			WithContext("credential", name).
			WithContext("backend", cm.Backend().String())
	}
}

// Lookup returns the credential value and whether it exists. Errors other
// than a missing credential are returned.
func (cm *CredentialManager) Lookup(name string) (string, bool, error) {
	cred, err := cm.GetCredential(name)
	if err != nil {
		if errors.GetErrorCode(err) == errors.ErrCodeNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return cred.Value, true, nil
}

// DeleteCredential removes a stored credential
func (cm *CredentialManager) DeleteCredential(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if cm.useKeyring {
		if err := keyring.Delete(keyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return cm.updateCredentialIndex(name, false)
	}
	if err := os.Remove(cm.getCredentialPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListCredentials returns the sorted names of stored credentials
func (cm *CredentialManager) ListCredentials() ([]string, error) {
	var (
		names []string
		err   error
	)
	if cm.useKeyring {
		// Keyring doesn't support listing, so we maintain a separate index
		names, err = cm.getCredentialIndex()
	} else {
		names, err = cm.listEncrypted()
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func validateName(name string) error {
	if !credentialName.MatchString(name) {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Invalid credential name %q", name)).
			WithContext("credential", name)
	}
	return nil
}

// Keyring storage methods

func (cm *CredentialManager) storeInKeyring(name, credType, value string, metadata map[string]string) error {
	cred := Credential{
		Name:     name,
		Type:     credType,
		Value:    value,
		Metadata: metadata,
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := keyring.Set(keyringService, name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return cm.updateCredentialIndex(name, true)
}

func (cm *CredentialManager) getFromKeyring(name string) (*Credential, error) {
	data, err := keyring.Get(keyringService, name)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}

// Encrypted file storage methods

func (cm *CredentialManager) storeEncrypted(name, credType, value string, metadata map[string]string) error {
	encrypted, err := cm.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	cred := Credential{
		Name:      name,
		Type:      credType,
		Value:     encrypted,
		Metadata:  metadata,
		Encrypted: true,
	}

	return cm.saveCredentialFile(name, &cred)
}

func (cm *CredentialManager) getEncrypted(name string) (*Credential, error) {
	cred, err := cm.loadCredentialFile(name)
	if err != nil {
		return nil, err
	}

	if cred.Encrypted {
		decrypted, err := cm.decrypt(cred.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential: %w", err)
		}
		cred.Value = decrypted
		cred.Encrypted = false
	}

	return cred, nil
}

func (cm *CredentialManager) listEncrypted() ([]string, error) {
	entries, err := os.ReadDir(cm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cred") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".cred"))
		}
	}

	return names, nil
}

// Encryption methods

func (cm *CredentialManager) encrypt(plaintext string) (string, error) {
	gcm, err := newGCM(cm.masterKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (cm *CredentialManager) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(cm.masterKey)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, encryptedData := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Helper methods

func (cm *CredentialManager) getMasterKey() ([]byte, error) {
	keyPath, err := common.ValidatePath(cm.getMasterKeyPath(), cm.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid master key path: %w", err)
	}

	data, err := os.ReadFile(keyPath) // #nosec G304 - path is validated
	if err == nil {
		// Extract the key part (skip the salt)
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	// Derive key from machine-specific data
	key := pbkdf2.Key([]byte(getMachineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(cm.dir, common.DirPermissionSecure); err != nil {
		return nil, err
	}

	keyData := append(salt, key...)
	if err := os.WriteFile(keyPath, keyData, common.FilePermissionSecure); err != nil { // #nosec G304
		return nil, err
	}

	return key, nil
}

func (cm *CredentialManager) getCredentialPath(name string) string {
	return filepath.Join(cm.dir, name+".cred")
}

func (cm *CredentialManager) getMasterKeyPath() string {
	return filepath.Join(cm.dir, ".master")
}

func (cm *CredentialManager) getIndexPath() string {
	return filepath.Join(cm.dir, ".index")
}

func (cm *CredentialManager) saveCredentialFile(name string, cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cm.dir, common.DirPermissionSecure); err != nil {
		return err
	}

	path, err := common.ValidatePath(cm.getCredentialPath(name), cm.dir)
	if err != nil {
		return fmt.Errorf("invalid credential file path: %w", err)
	}
	return os.WriteFile(path, data, common.FilePermissionSecure) // #nosec G304
}

func (cm *CredentialManager) loadCredentialFile(name string) (*Credential, error) {
	path, err := common.ValidatePath(cm.getCredentialPath(name), cm.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid credential file path: %w", err)
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}

	return &cred, nil
}

func (cm *CredentialManager) getCredentialIndex() ([]string, error) {
	data, err := os.ReadFile(cm.getIndexPath()) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	return index, nil
}

func (cm *CredentialManager) updateCredentialIndex(name string, add bool) error {
	index, err := cm.getCredentialIndex()
	if err != nil {
		return err
	}

	found := false
	newIndex := []string{}
	for _, n := range index {
		if n == name {
			found = true
			if !add {
				continue
			}
		}
		newIndex = append(newIndex, n)
	}

	if add && !found {
		newIndex = append(newIndex, name)
	}

	data, err := json.Marshal(newIndex)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cm.dir, common.DirPermissionSecure); err != nil {
		return err
	}
	return os.WriteFile(cm.getIndexPath(), data, common.FilePermissionSecure) // #nosec G304
}

// Platform-specific helpers

func isKeyringAvailable() bool {
	switch strings.ToLower(os.Getenv(KeyringEnv)) {
	case "false", "0", "no":
		return false
	case "true", "1", "yes":
		return true
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Secret Service needs a session bus, which normally implies a desktop session
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

func getMachineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	data := fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)
	hash := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(hash[:])
}
