package auth

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultAuthority = "https://login.microsoftonline.com"

type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Credentials identify an app registration that authenticates with a
// certificate instead of a client secret.
type Credentials struct {
	TenantID        string
	ClientID        string
	PrivateKeyPath  string
	CertificatePath string
	// Authority defaults to DefaultAuthority.
	Authority string
}

func (c Credentials) tokenURL() string {
	authority := c.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(authority, "/"), c.TenantID)
}

func GetGraphAccessToken(ctx context.Context, client *http.Client, creds Credentials) (AccessTokenResponse, error) {
	if creds.TenantID == "" {
		return AccessTokenResponse{}, fmt.Errorf("GRAPH_TENANT_ID not set")
	}
	if creds.ClientID == "" {
		return AccessTokenResponse{}, fmt.Errorf("GRAPH_CLIENT_ID not set")
	}

	jwt, err := makeJWT(creds)
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("make JWT returned: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	return fetchAccessToken(ctx, jwt, creds, client)
}

func fetchAccessToken(ctx context.Context, jwt string, creds Credentials, client *http.Client) (AccessTokenResponse, error) {
	data := url.Values{}
	data.Set("client_id", creds.ClientID)
	data.Set("scope", "https://graph.microsoft.com/.default")
	data.Set("grant_type", "client_credentials")
	data.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
	data.Set("client_assertion", jwt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.tokenURL(), strings.NewReader(data.Encode()))
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("sending request to Entra ID endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return AccessTokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var accessTokenResp AccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&accessTokenResp); err != nil {
		return AccessTokenResponse{}, fmt.Errorf("decoding token response: %w", err)
	}

	if !strings.EqualFold(accessTokenResp.TokenType, "Bearer") {
		return AccessTokenResponse{}, fmt.Errorf("invalid token_type: %s", accessTokenResp.TokenType)
	}

	return accessTokenResp, nil
}

func makeJWT(creds Credentials) (string, error) {
	thumbprint, err := computeX5TFromCert(creds.CertificatePath)
	if err != nil {
		return "", fmt.Errorf("thumbprint returned: %w", err)
	}

	privateKey, err := loadPrivateKey(creds.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("privatekey returned: %w", err)
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"aud": creds.tokenURL(),
		"iss": creds.ClientID,
		"sub": creds.ClientID,
		"jti": uuid.NewString(),
		"nbf": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["x5t"] = thumbprint

	signedJWT, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("signed JWT returned: %w", err)
	}

	return signedJWT, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("private key bytes returned: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM file %s", path)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("private key returned from PKCS8: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type %s", block.Type)
	}
}

func computeX5TFromCert(path string) (string, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read certificate from path: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return "", fmt.Errorf("no CERTIFICATE block in %s", path)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("cert returned from parse certificate: %w", err)
	}

	checkSum := sha1.Sum(cert.Raw)

	return base64.RawURLEncoding.EncodeToString(checkSum[:]), nil
}
