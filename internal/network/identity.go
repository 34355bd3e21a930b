package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	crypto "github.com/libp2p/go-libp2p/core/crypto"
	peer "github.com/libp2p/go-libp2p/core/peer"
)

// PersistentIdentity holds the private key and peer ID.
type PersistentIdentity struct {
	PrivKey []byte `json:"priv_key"`
	PeerID  string `json:"peer_id"`
}

// SaveIdentity writes id to path with owner-only permissions.
func SaveIdentity(path string, id *PersistentIdentity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadIdentity reads an identity written by SaveIdentity.
func LoadIdentity(path string) (*PersistentIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var id PersistentIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// LoadOrCreateIdentity returns the key stored at path, generating and
// saving a fresh Ed25519 key when the file does not exist. An empty path
// yields an ephemeral key.
func LoadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	if path != "" {
		id, err := LoadIdentity(path)
		switch {
		case err == nil:
			priv, err := crypto.UnmarshalPrivateKey(id.PrivKey)
			if err != nil {
				return nil, fmt.Errorf("decode identity %s: %w", path, err)
			}
			pid, err := peer.IDFromPrivateKey(priv)
			if err != nil {
				return nil, err
			}
			if pid.String() != id.PeerID {
				return nil, fmt.Errorf("identity %s: peer id does not match key", path)
			}
			return priv, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("load identity %s: %w", path, err)
		}
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return priv, nil
	}

	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	privBytes, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := SaveIdentity(path, &PersistentIdentity{PrivKey: privBytes, PeerID: pid.String()}); err != nil {
		return nil, fmt.Errorf("save identity %s: %w", path, err)
	}
	return priv, nil
}
