package reputation

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// TLSOptions points at optional PEM files used for outbound connections.
type TLSOptions struct {
	CertFile   string
	KeyFile    string
	Passphrase string
	CAFile     string
}

// HTTPClientOptions configures the outbound HTTP client.
type HTTPClientOptions struct {
	Timeout time.Duration
	Proxy   string
	TLS     TLSOptions
}

// NewHTTPClient builds the client used to reach the reputation service.
// Unreadable TLS material is an error rather than a silent downgrade.
func NewHTTPClient(opts HTTPClientOptions) (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("reputation: default transport is not *http.Transport")
	}
	transport := base.Clone()

	tlsConfig, err := buildTLSConfig(opts.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	if proxy := strings.TrimSpace(opts.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("reputation: proxy url: %w", err)
		}
		if proxyURL.Host == "" {
			return nil, fmt.Errorf("reputation: proxy url missing host: %q", proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func buildTLSConfig(opts TLSOptions) (*tls.Config, error) {
	if opts.CertFile == "" && opts.KeyFile == "" && opts.CAFile == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, errors.New("reputation: tls cert and key must be provided together")
		}
		cert, err := loadKeyPair(opts.CertFile, opts.KeyFile, opts.Passphrase)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.CAFile != "" {
		caData, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reputation: read ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caData) {
			return nil, errors.New("reputation: ca file contains no certificates")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func loadKeyPair(certFile, keyFile, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("reputation: read cert file: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("reputation: read key file: %w", err)
	}
	if passphrase != "" {
		keyPEM, err = decryptKey(keyPEM, passphrase)
		if err != nil {
			return tls.Certificate{}, err
		}
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("reputation: load key pair: %w", err)
	}
	return cert, nil
}

// decryptKey unwraps a legacy RFC 1423 encrypted PEM key. Unencrypted keys
// pass through unchanged.
func decryptKey(keyPEM []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("reputation: key file contains no PEM block")
	}
	//nolint:staticcheck // legacy PEM encryption
	if !x509.IsEncryptedPEMBlock(block) {
		return keyPEM, nil
	}
	//nolint:staticcheck
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("reputation: decrypt key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}
