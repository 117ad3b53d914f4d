package strand

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/indigo-web/strand/internal/address"
	"golang.org/x/crypto/acme/autocert"
)

const selfSignedValidity = 365 * 24 * time.Hour

// HTTPS adds a TLS listener with the certificate and key loaded from the files.
func (a *App) HTTPS(addr, cert, key string) *App {
	return a.Listen(addr, tlsListener(cert, key))
}

// AutoHTTPS adds a TLS listener with certificates obtained via ACME for the domains. When
// addr points at the localhost, an in-memory self-signed certificate is used instead.
func (a *App) AutoHTTPS(addr string, domains ...string) *App {
	if address.IsLocalhost(addr) {
		cert, err := selfSignedCert()
		if err != nil {
			a.logger.Warn("can't generate self-signed certificate, TLS is disabled",
				slog.String("addr", addr),
				slog.Any("error", err),
			)

			return a.Listen(addr)
		}

		return a.Listen(addr, certListener(cert))
	}

	return a.Listen(addr, autoTLSListener(a.logger, domains...))
}

func tlsListener(cert, key string) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		certificate, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, err
		}

		return certListener(certificate)(network, addr)
	}
}

func certListener(cert tls.Certificate) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		return tls.Listen(network, addr, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
}

func autoTLSListener(logger *slog.Logger, domains ...string) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		m := &autocert.Manager{
			Prompt: autocert.AcceptTOS,
		}

		if len(domains) > 0 {
			m.HostPolicy = autocert.HostWhitelist(domains...)
		}

		if cache, err := cacheDir(); err != nil {
			logger.Warn("auto HTTPS: not using a cache", slog.Any("error", err))
		} else {
			m.Cache = autocert.DirCache(cache)
		}

		return tls.Listen(network, addr, m.TLSConfig())
	}
}

func cacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, "strand-autocert")
	return dir, os.MkdirAll(dir, 0o700)
}

func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return tls.Certificate{}, err
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Localhost"}},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}
