package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// ReloadInterval is how long a hot-reloaded certificate is cached.
const ReloadInterval = 10 * time.Second

var ErrCertRequired = errors.New("tls: server cert/key required when TLS enabled")

// Options defines mTLS configuration inputs shared by the status-fetch
// client, the management server and the management client.
type Options struct {
    Enable             bool
    CAFile             string
    CertFile           string
    KeyFile            string
    InsecureSkipVerify bool
    ServerName         string
    // HotReload re-reads the certificate pair from disk on handshake so that
    // rotated files are picked up without a restart.
    HotReload bool
}

func loadPool(path string) (*x509.CertPool, error) {
    pem, err := os.ReadFile(path)
    if err != nil { return nil, err }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(pem) {
        return nil, fmt.Errorf("tls: no certificates in %s", path)
    }
    return pool, nil
}

// certLoader caches a key pair for ReloadInterval.
type certLoader struct {
    certFile, keyFile string

    mu       sync.RWMutex
    cached   *tls.Certificate
    lastLoad time.Time
}

func (l *certLoader) load() (*tls.Certificate, error) {
    l.mu.RLock()
    if l.cached != nil && time.Since(l.lastLoad) < ReloadInterval {
        c := *l.cached
        l.mu.RUnlock()
        return &c, nil
    }
    l.mu.RUnlock()
    cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
    if err != nil { return nil, err }
    l.mu.Lock()
    l.cached = &cert
    l.lastLoad = time.Now()
    l.mu.Unlock()
    return &cert, nil
}

// Server returns a tls.Config for servers if enabled, otherwise nil.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, ErrCertRequired
    }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    if o.HotReload {
        l := &certLoader{certFile: o.CertFile, keyFile: o.KeyFile}
        if _, err := l.load(); err != nil { return nil, err }
        cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return l.load() }
        return cfg, nil
    }
    cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
    if err != nil { return nil, err }
    cfg.Certificates = []tls.Certificate{cert}
    return cfg, nil
}

// Client returns a tls.Config for clients if enabled, otherwise nil. A
// client certificate is optional.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return cfg, nil
    }
    if o.HotReload {
        l := &certLoader{certFile: o.CertFile, keyFile: o.KeyFile}
        if _, err := l.load(); err != nil { return nil, err }
        cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return l.load() }
        return cfg, nil
    }
    cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
    if err != nil { return nil, err }
    cfg.Certificates = []tls.Certificate{cert}
    return cfg, nil
}
