package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DefaultRegistryContract is the ISCC declaration contract on bloxberg.
const DefaultRegistryContract = "0x4945d63B509e137b0293Bd958cf97B61996c0fB9"

const registryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "actor", "type": "address"},
      {"indexed": false, "internalType": "bytes", "name": "iscc", "type": "bytes"},
      {"indexed": false, "internalType": "bytes", "name": "tophash", "type": "bytes"}
    ],
    "name": "ISCC",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "bytes", "name": "iscc", "type": "bytes"},
      {"internalType": "bytes", "name": "tophash", "type": "bytes"}
    ],
    "name": "declare",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	registryABI     abi.ABI
	registryABIOnce sync.Once
	registryABIErr  error
)

// RegistryABI returns the parsed declaration contract ABI.
func RegistryABI() (abi.ABI, error) {
	registryABIOnce.Do(func() {
		registryABI, registryABIErr = abi.JSON(strings.NewReader(registryABIJSON))
	})
	return registryABI, registryABIErr
}
