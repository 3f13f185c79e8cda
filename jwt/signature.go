package jwt

import (
	"fmt"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const ccidPrefix = "con"

// IsCCID reports whether keyID looks like a bech32 "con1..." account id.
func IsCCID(keyID string) bool {
	return len(keyID) == 42 && strings.HasPrefix(keyID, ccidPrefix+"1")
}

// SignBytes signs keccak256(data) with a hex encoded private key.
func SignBytes(data []byte, privatekey string) ([]byte, error) {
	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return crypto.Sign(crypto.Keccak256(data), key)
}

// RecoverCCID returns the ccid of the key that produced signature over data.
func RecoverCCID(data, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length %d", len(signature))
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(data), signature)
	if err != nil {
		return "", errors.Wrap(err, "recover public key")
	}
	return bech32.ConvertAndEncode(ccidPrefix, crypto.PubkeyToAddress(*pub).Bytes())
}

func VerifySignature(data, signature []byte, keyID string) error {
	ccid, err := RecoverCCID(data, signature)
	if err != nil {
		return err
	}
	if ccid != keyID {
		return fmt.Errorf("signature does not match key %s", keyID)
	}
	return nil
}

// CCIDFromPrivateKey derives the ccid of a hex encoded private key.
func CCIDFromPrivateKey(privatekey string) (string, error) {
	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return "", errors.Wrap(err, "invalid private key")
	}
	return bech32.ConvertAndEncode(ccidPrefix, crypto.PubkeyToAddress(key.PublicKey).Bytes())
}
