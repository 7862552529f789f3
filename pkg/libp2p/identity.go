package libp2p

import (
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

const identityFileName = "identity.key"

// getShelfDir returns the path to the application's data directory.
// If baseDir is provided, it's used instead of the default user home directory.
func getShelfDir(baseDir string) (string, error) {
	if baseDir != "" {
		return baseDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".goshelf"), nil
}

// SaveIdentity saves the private key to the data directory.
func SaveIdentity(key crypto.PrivKey, baseDir string) error {
	shelfDir, err := getShelfDir(baseDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(shelfDir, 0700); err != nil {
		return err
	}

	keyBytes, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(shelfDir, identityFileName), keyBytes, 0600)
}

// LoadIdentity loads the private key from the data directory.
// If the key doesn't exist, it generates a new one and saves it, so a
// node restarted with the same data dir keeps its peer id.
func LoadIdentity(baseDir string) (crypto.PrivKey, error) {
	shelfDir, err := getShelfDir(baseDir)
	if err != nil {
		return nil, err
	}
	keyPath := filepath.Join(shelfDir, identityFileName)

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			privKey, _, err := crypto.GenerateEd25519Key(nil)
			if err != nil {
				return nil, err
			}
			if err := SaveIdentity(privKey, baseDir); err != nil {
				return nil, err
			}
			return privKey, nil
		}
		return nil, err
	}

	return crypto.UnmarshalPrivateKey(keyBytes)
}
