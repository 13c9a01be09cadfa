package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGenerateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func credentialsJSON(t *testing.T, key *rsa.PrivateKey, tokenURI string) string {
	t.Helper()
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	raw, err := json.Marshal(map[string]string{
		"client_email": "reports@example.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    tokenURI,
	})
	require.NoError(t, err)
	return string(raw)
}

type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type fakeStorage struct {
	server      *httptest.Server
	tokenCalls  atomic.Int32
	uploaded    map[string][]byte
	contentType string
}

func newFakeStorage(t *testing.T, key *rsa.PrivateKey) *fakeStorage {
	t.Helper()
	fs := &fakeStorage{uploaded: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fs.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		assertion := r.PostForm.Get("assertion")
		parsed, err := jwt.ParseWithClaims(assertion, &assertionClaims{}, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil || !parsed.Valid {
			http.Error(w, "bad assertion", http.StatusUnauthorized)
			return
		}
		claims := parsed.Claims.(*assertionClaims)
		if claims.Scope != scope || claims.Issuer != "reports@example.iam.gserviceaccount.com" {
			http.Error(w, "bad claims", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/storage/v1/b/ledger-reports/o", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	mux.HandleFunc("/upload/storage/v1/b/ledger-reports/o", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" || r.URL.Query().Get("uploadType") != "media" {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		fs.uploaded[r.URL.Query().Get("name")] = body
		fs.contentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{}`))
	})
	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func newTestClient(t *testing.T, key *rsa.PrivateKey, fs *fakeStorage) *Client {
	t.Helper()
	httpClient := fs.server.Client()
	ts, info, err := newServiceAccountTokenSource(httpClient, credentialsJSON(t, key, fs.server.URL+"/token"))
	require.NoError(t, err)
	return &Client{
		httpClient:     httpClient,
		baseURL:        fs.server.URL,
		bucket:         "ledger-reports",
		prefix:         "reports",
		tokenSource:    ts,
		serviceAccount: info,
	}
}

func TestUploadUsesCachedServiceAccountToken(t *testing.T) {
	key := mustGenerateKey(t)
	fs := newFakeStorage(t, key)
	client := newTestClient(t, key, fs)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))
	object := client.ObjectName("commissions/commissions_20260310.csv")
	require.NoError(t, client.Upload(ctx, object, "text/csv", []byte("ID\n1\n")))

	assert.Equal(t, "reports/commissions/commissions_20260310.csv", object)
	assert.Equal(t, []byte("ID\n1\n"), fs.uploaded[object])
	assert.Equal(t, "text/csv", fs.contentType)
	assert.EqualValues(t, 1, fs.tokenCalls.Load())
}

func TestUploadSurfacesStatus(t *testing.T) {
	key := mustGenerateKey(t)
	fs := newFakeStorage(t, key)
	client := newTestClient(t, key, fs)
	client.bucket = "missing"

	err := client.Upload(context.Background(), "x.csv", "text/csv", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcs upload failed")
}

func TestSignedReadURL(t *testing.T) {
	key := mustGenerateKey(t)
	client := &Client{
		baseURL: storageBaseURL,
		bucket:  "ledger-reports",
		serviceAccount: &serviceAccountInfo{
			clientEmail: "signer@example.com",
			privateKey:  key,
		},
	}

	object := "reports/payouts/payouts_20260310.xlsx"
	raw, err := client.SignedReadURL(object, 5*time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(parsed.Host, "storage.googleapis.com"))
	assert.Equal(t, "/ledger-reports/"+object, parsed.Path)

	values := parsed.Query()
	assert.Equal(t, "signer@example.com", values.Get("GoogleAccessId"))
	expires := values.Get("Expires")
	require.NotEmpty(t, expires)

	sig, err := base64.StdEncoding.DecodeString(values.Get("Signature"))
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("GET\n\n\n" + expires + "\n/ledger-reports/" + object))
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, hash[:], sig))
}

func TestSignedReadURLRequiresServiceAccount(t *testing.T) {
	_, err := (&Client{bucket: "b"}).SignedReadURL("x", time.Minute)
	assert.Error(t, err)
}

func TestNewServiceAccountTokenSourceRejectsBadCredentials(t *testing.T) {
	_, _, err := newServiceAccountTokenSource(http.DefaultClient, `{"client_email":""}`)
	assert.Error(t, err)
	_, _, err = newServiceAccountTokenSource(http.DefaultClient, `not json`)
	assert.Error(t, err)
}
