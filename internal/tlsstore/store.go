package tlsstore

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	logging "github.com/inconshreveable/log15"

	"offline_gateway/internal/obs"
)

const DefaultCheckInterval = 30 * time.Second

type Options struct {
	// CheckInterval bounds how often handshakes stat the files.
	CheckInterval time.Duration
	Logger        logging.Logger
}

// Store hands out the listener certificate and picks up a rotated pair from
// disk without a restart. A pair that fails to load leaves the previous
// certificate in service.
type Store struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
	checked time.Time
}

func Load(certFile string, keyFile string, opts Options) (*Store, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("tls cert_file and key_file are required")
	}
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = obs.NopLogger()
	}
	s := &Store{certFile: certFile, keyFile: keyFile, interval: interval, logger: logger, now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads the pair from disk now.
func (s *Store) Reload() error {
	modTime, err := s.latestModTime()
	if err != nil {
		return err
	}
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.certFile, err)
	}
	s.mu.Lock()
	s.cert = &cert
	s.modTime = modTime
	s.checked = s.now()
	s.mu.Unlock()
	return nil
}

func (s *Store) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if s == nil {
		return nil, errors.New("tls store is nil")
	}
	s.mu.Lock()
	due := s.now().Sub(s.checked) >= s.interval
	if due {
		s.checked = s.now()
	}
	loadedAt := s.modTime
	s.mu.Unlock()

	if due {
		if modTime, err := s.latestModTime(); err == nil && modTime.After(loadedAt) {
			if err := s.Reload(); err != nil {
				s.logger.Error("certificate reload failed", "cert", s.certFile, "err", err)
			} else {
				s.logger.Info("certificate reloaded", "cert", s.certFile)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cert, nil
}

func (s *Store) latestModTime() (time.Time, error) {
	var latest time.Time
	for _, path := range []string{s.certFile, s.keyFile} {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}
