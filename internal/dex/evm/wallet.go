package evm

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// DefaultKeyEnv names the environment variable holding the hex signing key.
const DefaultKeyEnv = "TRADER_PRIVATE_KEY"

// LoadPrivateKeyFromEnv reads a hex secp256k1 key from the named variable, loading .env first.
func LoadPrivateKeyFromEnv(name string) (*ecdsa.PrivateKey, error) {
	_ = godotenv.Load() // best-effort
	if name == "" {
		name = DefaultKeyEnv
	}
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("%s not set", name)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		// The key value itself must never reach the error text.
		return nil, errors.New(name + " is not a valid hex private key")
	}
	return key, nil
}

// AddressOf derives the account address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
