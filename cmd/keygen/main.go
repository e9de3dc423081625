// Command keygen generates a node identity and a tournament ring keypair,
// printing the seeds and the registration line operators exchange out of
// band.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/steake/bitcell/crypto/clsag"
	"github.com/steake/bitcell/model"
)

func main() {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		fmt.Fprintf(os.Stderr, "seed generation failed: %v\n", err)
		os.Exit(1)
	}

	secretKey, err := model.SecretKeyFromSeed(seed[:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "key derivation failed: %v\n", err)
		os.Exit(1)
	}

	var ringSeed [64]byte
	if _, err := rand.Read(ringSeed[:]); err != nil {
		fmt.Fprintf(os.Stderr, "ring seed generation failed: %v\n", err)
		os.Exit(1)
	}

	ringKey, err := clsag.SecretKeyFromBytes(ringSeed[:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ring key derivation failed: %v\n", err)
		os.Exit(1)
	}

	minerPK := secretKey.PublicKey()
	ringPK := ringKey.PublicKey()
	keyImage := ringKey.KeyImage()

	fmt.Printf("node_keySeed       = %s\n", hex.EncodeToString(seed[:]))
	fmt.Printf("node public key    = %s\n", minerPK)
	fmt.Printf("ring key seed      = %s\n", hex.EncodeToString(ringSeed[:]))
	fmt.Printf("ring public key    = %s\n", hex.EncodeToString(ringPK[:]))
	fmt.Printf("key image          = %s\n", hex.EncodeToString(keyImage[:]))
	fmt.Printf("registration line  = %s:%s:%s\n",
		minerPK,
		hex.EncodeToString(ringPK[:]),
		hex.EncodeToString(keyImage[:]))
}
