// Command devtoken mints bearer tokens for manual testing against a server
// configured with the matching public key.
//
//	openssl genrsa -out key.pem 2048
//	devtoken -key key.pem -pub > pub.pem   # auth.public_key_pem
//	devtoken -key key.pem -sub alice -name Alice -email alice@example.com
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/partnerlink/internal/tokens"
)

var (
	keyPath  = flag.String("key", "", "Path to the RSA private key in PEM format")
	printPub = flag.Bool("pub", false, "Print the public key in PEM format and exit")
	issuer   = flag.String("iss", "http://127.0.0.1:8081/oauth2", "Token issuer")
	audience = flag.String("aud", "partnerlink", "Token audience")
	subject  = flag.String("sub", "", "User id")
	scopes   = flag.String("scope", "openid profile email", "Space separated scopes")
	name     = flag.String("name", "", "Name claim")
	email    = flag.String("email", "", "Email claim")
	picture  = flag.String("picture", "", "Picture claim")
	ttl      = flag.Duration("ttl", time.Hour, "Token lifetime")
)

func publicKeyPEM(privateKeyPEM []byte) (string, error) {
	priv, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	pub, err := priv.PublicKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate public key: %w", err)
	}

	pem, err := jwk.Pem(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return string(pem), nil
}

func main() {
	flag.Parse()
	if *keyPath == "" {
		log.Fatal().Msg("-key is required")
	}

	keyPEM, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read key file")
	}

	if *printPub {
		pub, err := publicKeyPEM(keyPEM)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to derive public key")
		}
		fmt.Print(pub)
		return
	}

	if *subject == "" {
		log.Fatal().Msg("-sub is required")
	}

	signer, err := tokens.NewSigner(string(keyPEM), *issuer, *audience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create signer")
	}

	token, err := signer.Sign(&tokens.Claims{
		Subject: *subject,
		Scopes:  strings.Fields(*scopes),
		Name:    *name,
		Email:   *email,
		Picture: *picture,
		TTL:     *ttl,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Println(token)
}
