// Command sqlmapper-token signs a development bearer token for a sqlmapper
// server running with OIDC authentication against a local key pair.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

type tokenOptions struct {
	Issuer    string
	Audience  []string
	Subject   string
	KeyID     string
	RoleClaim string
	Role      string
	Lifetime  time.Duration
}

func main() {
	subject := "user-1"
	if u, err := user.Current(); err == nil {
		subject = u.Username
	}

	keyPath := pflag.String("key", ".auth/jwt_private.pem", "Path to RSA private key (PEM)")
	issuer := pflag.String("issuer", "https://localhost:9000", "Token issuer")
	audience := pflag.String("audience", "sqlmapper", "Token audience (comma-separated)")
	pflag.StringVar(&subject, "subject", subject, "Token subject")
	roleClaim := pflag.String("role-claim", "db_role", "Claim carrying the database role")
	role := pflag.String("role", "", "Database role (optional)")
	kid := pflag.String("kid", "local-key", "Key ID header")
	lifetime := pflag.Duration("expires", time.Hour, "Token lifetime")
	pflag.Parse()

	key, err := loadPrivateKey(*keyPath)
	if err != nil {
		exitErr(err)
	}
	signed, err := mintToken(key, tokenOptions{
		Issuer:    *issuer,
		Audience:  splitList(*audience),
		Subject:   subject,
		KeyID:     *kid,
		RoleClaim: *roleClaim,
		Role:      *role,
		Lifetime:  *lifetime,
	}, time.Now())
	if err != nil {
		exitErr(err)
	}
	fmt.Println(signed)
}

// mintToken signs an RS256 token valid from one minute before now.
func mintToken(key *rsa.PrivateKey, opts tokenOptions, now time.Time) (string, error) {
	if len(opts.Audience) == 0 {
		return "", errors.New("at least one audience is required")
	}
	if opts.Lifetime <= 0 {
		return "", fmt.Errorf("token lifetime must be positive, got %s", opts.Lifetime)
	}
	claims := jwt.MapClaims{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": opts.Audience,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(opts.Lifetime).Unix(),
	}
	if opts.Role != "" {
		claims[opts.RoleClaim] = opts.Role
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = opts.KeyID
	return token.SignedString(key)
}

// loadPrivateKey reads a PKCS#1 or PKCS#8 RSA key.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode private key pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return key, nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
