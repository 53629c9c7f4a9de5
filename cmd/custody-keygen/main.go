package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"datalabel-backend/internal/custody"
	"datalabel-backend/internal/ledger"
)

// Creates an encrypted custody keystore. The passphrase comes from
// CUSTODY_PASSPHRASE so it never appears in shell history.
func main() {
	out := flag.String("out", "custody.json", "keystore file to write")
	force := flag.Bool("force", false, "overwrite an existing keystore")
	flag.Parse()

	passphrase := os.Getenv("CUSTODY_PASSPHRASE")
	if passphrase == "" {
		fmt.Println("❌ CUSTODY_PASSPHRASE is not set")
		os.Exit(1)
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		fmt.Printf("❌ %s already exists, pass -force to overwrite\n", *out)
		os.Exit(1)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Printf("❌ generate key: %v\n", err)
		os.Exit(1)
	}
	kf, err := custody.EncryptKey(priv, []byte(passphrase), custody.DefaultScryptParams)
	if err != nil {
		fmt.Printf("❌ encrypt key: %v\n", err)
		os.Exit(1)
	}
	if err := custody.WriteKeyFile(*out, kf); err != nil {
		fmt.Printf("❌ write keystore: %v\n", err)
		os.Exit(1)
	}

	// the file must decrypt before anyone funds the address
	if _, err := custody.LoadSigner(*out, []byte(passphrase)); err != nil {
		fmt.Printf("❌ keystore does not decrypt: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Keystore written: %s\n", *out)
	fmt.Printf("📋 Custody address: %s\n", ledger.PublicKeyFromEd25519(pub).String())
	fmt.Println("Fund this address before enabling settlement.mode=custody.")
}
